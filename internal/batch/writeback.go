package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// writeBack persists rewritten sources. In all-or-nothing mode a single
// failure anywhere in the batch suppresses every write; outcomes already
// hold the rewritten text in memory, so nothing touches disk until the
// whole batch is known good. Failed files are never written in either mode.
func (d *Driver) writeBack(rep *Report) error {
	if d.opts.WriteMode == AllOrNothing && !rep.AllSucceeded() {
		slog.Warn("batch.writeback.suppressed",
			"pipeline", rep.Pipeline, "failed", rep.FailedCount())
		return nil
	}
	written := 0
	for _, e := range rep.Entries {
		if !e.Outcome.Succeeded() {
			continue
		}
		wrote, err := writeFileAtomic(e.Outcome.Output, e.Outcome.Text)
		if err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrFatalDriver, e.Outcome.Output, err)
		}
		if wrote {
			written++
		}
	}
	slog.Info("batch.writeback", "pipeline", rep.Pipeline, "written", written)
	return nil
}

// WriteFile atomically writes one rewritten source, with the same
// identical-content skip the batch write-back applies.
func WriteFile(path string, data []byte) error {
	_, err := writeFileAtomic(path, data)
	return err
}

// writeFileAtomic replaces path with data via a temp file and rename in the
// destination directory, so a crash mid-write never leaves a truncated
// file. When the destination already holds identical content the write is
// skipped entirely, preserving mtimes for build systems.
func writeFileAtomic(path string, data []byte) (bool, error) {
	if old, err := os.ReadFile(path); err == nil {
		if xxh3.Hash(old) == xxh3.Hash(data) {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fortree-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, err
	}
	return true, nil
}
