package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fortree/fortree/internal/processor"
)

// Report is the deterministic summary of one batch run. Entries are sorted
// by input path so the same inputs always render the same report, whatever
// order the workers finished in.
type Report struct {
	Pipeline string
	Entries  []Entry
}

// Entry is one file's line in the report.
type Entry struct {
	Path    string
	Outcome processor.Outcome
}

func NewReport(pipelineName string, outcomes []processor.Outcome) *Report {
	entries := make([]Entry, len(outcomes))
	for i, o := range outcomes {
		entries[i] = Entry{Path: o.Input, Outcome: o}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Report{Pipeline: pipelineName, Entries: entries}
}

// AllSucceeded reports whether every file in the batch succeeded.
func (r *Report) AllSucceeded() bool { return r.FailedCount() == 0 }

func (r *Report) FailedCount() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Outcome.Succeeded() {
			n++
		}
	}
	return n
}

// WriteText renders the report for terminals: one line per file plus a
// trailing summary line.
func (r *Report) WriteText(w io.Writer) error {
	for _, e := range r.Entries {
		if e.Outcome.Succeeded() {
			if _, err := fmt.Fprintf(w, "ok\t%s\n", e.Path); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "FAIL\t%s\t%s\n", e.Path, e.Outcome.Failure.String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d file(s), %d failed\n", len(r.Entries), r.FailedCount())
	return err
}

type jsonReport struct {
	Pipeline string      `json:"pipeline"`
	Files    int         `json:"files"`
	Failed   int         `json:"failed"`
	Entries  []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	Path    string       `json:"path"`
	Output  string       `json:"output,omitempty"`
	State   string       `json:"state"`
	Passes  []jsonPass   `json:"passes,omitempty"`
	Failure *jsonFailure `json:"failure,omitempty"`
}

type jsonPass struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Summary string   `json:"summary,omitempty"`
	Details []string `json:"details,omitempty"`
	Round   int      `json:"round,omitempty"`
}

type jsonFailure struct {
	Kind    string `json:"kind"`
	Pass    string `json:"pass,omitempty"`
	Message string `json:"message"`
}

// WriteJSON renders the report for machine consumption.
func (r *Report) WriteJSON(w io.Writer) error {
	out := jsonReport{
		Pipeline: r.Pipeline,
		Files:    len(r.Entries),
		Failed:   r.FailedCount(),
		Entries:  make([]jsonEntry, len(r.Entries)),
	}
	for i, e := range r.Entries {
		je := jsonEntry{
			Path:   e.Path,
			Output: e.Outcome.Output,
			State:  e.Outcome.State.String(),
		}
		for _, le := range e.Outcome.Log {
			je.Passes = append(je.Passes, jsonPass{
				Name:    le.Pass,
				Status:  le.Status.String(),
				Summary: le.Summary,
				Details: le.Details,
				Round:   le.Round,
			})
		}
		if f := e.Outcome.Failure; f != nil {
			je.Failure = &jsonFailure{Kind: string(f.Kind), Pass: f.Pass, Message: f.Message}
		}
		out.Entries[i] = je
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
