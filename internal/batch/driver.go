// Package batch fans files out to per-file processors under a bounded
// worker pool, collects their outcomes into a deterministic report, and
// writes rewritten sources back atomically.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fortree/fortree/internal/pipeline"
	"github.com/fortree/fortree/internal/processor"
)

// ErrFatalDriver marks errors that abort the batch itself, as opposed to
// per-file failures which are contained in the report.
var ErrFatalDriver = errors.New("batch: fatal driver error")

// WriteMode selects how the driver gates write-back on failures.
type WriteMode int

const (
	// PartialSuccess writes every succeeded file even when siblings failed.
	PartialSuccess WriteMode = iota
	// AllOrNothing writes only when every file in the batch succeeded.
	AllOrNothing
)

func (m WriteMode) String() string {
	if m == AllOrNothing {
		return "all-or-nothing"
	}
	return "partial-success"
}

// Options configures a batch run. The zero value is usable: NumCPU
// workers, partial-success write-back, no per-file timeout.
type Options struct {
	Concurrency int
	WriteMode   WriteMode
	Timeout     time.Duration // per file, 0 disables
	DryRun      bool          // process and report, never write
}

// Driver runs one pipeline over many files.
type Driver struct {
	pipe *pipeline.Pipeline
	opts Options
}

func NewDriver(pipe *pipeline.Pipeline, opts Options) *Driver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Driver{pipe: pipe, opts: opts}
}

// ExpandInputs resolves glob patterns to a deduplicated, sorted list of
// input paths. A pattern that matches nothing, or a match that is not a
// regular file, is a fatal driver error: a misspelled glob should abort the
// batch rather than silently shrink it.
func ExpandInputs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrFatalDriver, pat, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: pattern %q matched no files", ErrFatalDriver, pat)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("%w: stat %s: %v", ErrFatalDriver, m, err)
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%w: %s is not a regular file", ErrFatalDriver, m)
			}
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Jobs pairs each input with its output path. outputFor maps an input path
// to its destination; pass nil for in-place rewriting.
func (d *Driver) Jobs(inputs []string, outputFor func(string) string) []processor.Job {
	jobs := make([]processor.Job, len(inputs))
	for i, in := range inputs {
		out := in
		if outputFor != nil {
			out = outputFor(in)
		}
		jobs[i] = processor.Job{Input: in, Output: out, Pipeline: d.pipe}
	}
	return jobs
}

// Run processes all jobs in parallel and writes results back per the
// configured write mode. Every job appears exactly once in the returned
// report regardless of how it fared. Cancelling ctx stops dispatching new
// jobs; jobs already dispatched run to their natural terminal state and
// their outcomes are kept.
func (d *Driver) Run(ctx context.Context, jobs []processor.Job) (*Report, error) {
	slog.Info("batch.start",
		"pipeline", d.pipe.Name(), "files", len(jobs),
		"concurrency", d.opts.Concurrency, "mode", d.opts.WriteMode)

	outcomes := make([]processor.Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for i := range jobs {
		i := i
		g.Go(func() error {
			// Cancellation is checked when the worker slot is acquired:
			// a job that has started is never abandoned mid-flight.
			if err := ctx.Err(); err != nil {
				outcomes[i] = skippedOutcome(jobs[i], err)
				return nil
			}
			outcomes[i] = d.processOne(jobs[i])
			return nil
		})
	}
	_ = g.Wait()

	rep := NewReport(d.pipe.Name(), outcomes)
	for _, e := range rep.Entries {
		if e.Outcome.Failure != nil {
			slog.Warn("batch.file.failed", "input", e.Path, "failure", e.Outcome.Failure.String())
		}
	}

	if !d.opts.DryRun {
		if err := d.writeBack(rep); err != nil {
			return rep, err
		}
	}

	slog.Info("batch.done",
		"pipeline", d.pipe.Name(),
		"succeeded", len(jobs)-rep.FailedCount(), "failed", rep.FailedCount())

	skipped := 0
	for _, o := range outcomes {
		if o.Failure != nil && o.Failure.Kind == processor.KindFatalDriver {
			skipped++
		}
	}
	if skipped > 0 {
		return rep, fmt.Errorf("%w: dispatch stopped, %d job(s) not processed: %v",
			ErrFatalDriver, skipped, ctx.Err())
	}
	return rep, nil
}

// processOne runs one job, bounded by the per-file timeout when one is
// configured. On expiry the worker slot is released immediately; the
// processor goroutine finishes on its own and its result is discarded.
func (d *Driver) processOne(job processor.Job) processor.Outcome {
	if d.opts.Timeout <= 0 {
		return processor.Process(job)
	}
	done := make(chan processor.Outcome, 1)
	go func() { done <- processor.Process(job) }()

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o
	case <-timer.C:
		return processor.Outcome{
			Input:  job.Input,
			Output: job.Output,
			State:  processor.Failed,
			Failure: &processor.Failure{
				Kind:    processor.KindTimeout,
				Message: fmt.Sprintf("exceeded %s", d.opts.Timeout),
			},
		}
	}
}

func skippedOutcome(job processor.Job, cause error) processor.Outcome {
	return processor.Outcome{
		Input:  job.Input,
		Output: job.Output,
		State:  processor.Failed,
		Failure: &processor.Failure{
			Kind:    processor.KindFatalDriver,
			Message: fmt.Sprintf("not processed: %v", cause),
		},
	}
}
