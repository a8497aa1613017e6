// Package processor runs one file end-to-end through a pipeline:
// parse, transform, validate, unparse. Each run is pure per-file work with
// no shared state, so the batch driver can fan processors out freely.
package processor

import (
	"errors"
	"fmt"
	"os"

	"github.com/fortree/fortree/internal/fortran"
	"github.com/fortree/fortree/internal/pass"
	"github.com/fortree/fortree/internal/pipeline"
)

// State tracks a file's progress through the processor.
type State int

const (
	Pending State = iota
	Parsed
	Transformed
	Validated
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Parsed:
		return "parsed"
	case Transformed:
		return "transformed"
	case Validated:
		return "validated"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FailureKind is the error taxonomy for per-file failures.
type FailureKind string

const (
	KindParseError         FailureKind = "ParseError"
	KindPassError          FailureKind = "PassError"
	KindValidationError    FailureKind = "ValidationError"
	KindUnparseError       FailureKind = "UnparseError"
	KindTimeout            FailureKind = "Timeout"
	KindFixpointNotReached FailureKind = "FixpointNotReached"
	KindFatalDriver        FailureKind = "FatalDriverError"
)

// Job is one unit of batch work: where to read, where to write, and which
// pipeline to apply.
type Job struct {
	Input    string
	Output   string // equal to Input for in-place rewrites
	Pipeline *pipeline.Pipeline
}

// Failure describes why a job failed. Pass is empty for failures that are
// not attributable to one pass.
type Failure struct {
	Kind    FailureKind
	Pass    string
	Message string
}

func (f *Failure) String() string {
	if f.Pass != "" {
		return fmt.Sprintf("%s in pass %s: %s", f.Kind, f.Pass, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Outcome is the immutable result of one job; it is the only data that
// crosses back from a worker to the driver.
type Outcome struct {
	Input   string
	Output  string
	State   State
	Text    []byte // rewritten source, set only when Succeeded
	Log     []pipeline.LogEntry
	Failure *Failure
}

// Succeeded reports whether the job reached its terminal success state.
func (o *Outcome) Succeeded() bool { return o.State == Succeeded }

// Process runs a job end-to-end. All errors are contained in the returned
// Outcome; Process itself never fails.
func Process(job Job) Outcome {
	source, err := os.ReadFile(job.Input)
	if err != nil {
		return fail(job, KindParseError, "", fmt.Sprintf("read: %v", err))
	}
	return run(job, source)
}

// run is the state machine body, split out so tests can feed source text
// directly.
func run(job Job, source []byte) Outcome {
	tree, err := fortran.Parse(source)
	if err != nil {
		return fail(job, KindParseError, "", err.Error())
	}

	log, err := job.Pipeline.Run(tree)
	if err != nil {
		kind, passName := classifyPipelineError(err)
		o := fail(job, kind, passName, err.Error())
		o.Log = log
		return o
	}

	// Final structural check, independent of any validator passes the
	// pipeline may include.
	if err := tree.Validate(); err != nil {
		o := fail(job, KindValidationError, "", err.Error())
		o.Log = log
		return o
	}

	text, err := fortran.Unparse(tree)
	if err != nil {
		o := fail(job, KindUnparseError, "", err.Error())
		o.Log = log
		return o
	}

	return Outcome{
		Input:  job.Input,
		Output: job.Output,
		State:  Succeeded,
		Text:   text,
		Log:    log,
	}
}

func classifyPipelineError(err error) (FailureKind, string) {
	var pe *pipeline.PassError
	if errors.As(err, &pe) {
		if pe.Kind == pass.Validator {
			return KindValidationError, pe.Pass
		}
		return KindPassError, pe.Pass
	}
	if errors.Is(err, pipeline.ErrFixpointNotReached) {
		return KindFixpointNotReached, ""
	}
	return KindPassError, ""
}

func fail(job Job, kind FailureKind, passName, msg string) Outcome {
	return Outcome{
		Input:   job.Input,
		Output:  job.Output,
		State:   Failed,
		Failure: &Failure{Kind: kind, Pass: passName, Message: msg},
	}
}
