// Package pipeline composes passes into a named, ordered, immutable
// pipeline and executes them against one tree at a time. Ordering is
// caller-specified; declared pass pre/postconditions are checked best-effort
// at construction so a misconfigured pipeline fails before any file is
// touched.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fortree/fortree/internal/ftree"
	"github.com/fortree/fortree/internal/pass"
)

// DefaultMaxFixpointIterations bounds fixpoint groups that do not configure
// their own limit.
const DefaultMaxFixpointIterations = 10

// ErrFixpointNotReached reports a fixpoint group that never converged
// within its iteration bound.
var ErrFixpointNotReached = errors.New("pipeline: fixpoint not reached")

// PassError carries the failing pass's identity alongside its reason.
type PassError struct {
	Pass string
	Kind pass.Kind
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %s: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

type step struct {
	pass    pass.Pass
	cfg     pass.Config
	group   []step
	maxIter int
}

// Pipeline is an executable, immutable pass sequence. Built once, applied
// to many trees.
type Pipeline struct {
	name  string
	steps []step
}

// LogEntry records one pass application within a run.
type LogEntry struct {
	Pass        string
	Status      pass.Status
	Summary     string
	Details     []string
	Diagnostics []pass.Diagnostic
	Round       int // fixpoint round, 0 outside groups
}

// New resolves a spec against the available passes and validates declared
// ordering constraints.
func New(ctx *pass.Context, spec *Spec) (*Pipeline, error) {
	maxIter := spec.MaxFixpointIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxFixpointIterations
	}
	steps, err := buildSteps(ctx, spec.Passes, maxIter)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{name: spec.Name, steps: steps}
	if err := p.checkOrdering(); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the pipeline's configured name.
func (p *Pipeline) Name() string { return p.name }

func buildSteps(ctx *pass.Context, specs []StepSpec, defaultMaxIter int) ([]step, error) {
	steps := make([]step, 0, len(specs))
	for _, sp := range specs {
		if len(sp.Fixpoint) > 0 {
			inner, err := buildSteps(ctx, sp.Fixpoint, defaultMaxIter)
			if err != nil {
				return nil, err
			}
			mi := sp.MaxIterations
			if mi <= 0 {
				mi = defaultMaxIter
			}
			steps = append(steps, step{group: inner, maxIter: mi})
			continue
		}
		pp, ok := ctx.Lookup(sp.Name)
		if !ok {
			return nil, fmt.Errorf("unknown pass %q (available: %s)",
				sp.Name, strings.Join(ctx.Names(), ", "))
		}
		cfg := pass.Config{}
		for k, v := range sp.Options {
			cfg[k] = v
		}
		steps = append(steps, step{pass: pp, cfg: cfg})
	}
	return steps, nil
}

// checkOrdering verifies, best-effort, that every declared precondition can
// be satisfied by the postconditions of preceding passes. The parser
// guarantees "well-formed" as a base invariant. A precondition of the form
// "!inv" contradicting an earlier pass's postcondition is reported as a
// warning, not a failure.
func (p *Pipeline) checkOrdering() error {
	provided := map[string]bool{"well-formed": true}
	var visit func(steps []step) error
	visit = func(steps []step) error {
		for _, st := range steps {
			if st.group != nil {
				if err := visit(st.group); err != nil {
					return err
				}
				continue
			}
			for _, req := range st.pass.Requires() {
				if neg, ok := strings.CutPrefix(req, "!"); ok {
					if provided[neg] {
						slog.Warn("pipeline.precondition.contradiction",
							"pipeline", p.name, "pass", st.pass.Name(), "invariant", neg)
					}
					continue
				}
				if !provided[req] {
					return fmt.Errorf("pass %q requires invariant %q, which no preceding pass provides",
						st.pass.Name(), req)
				}
			}
			for _, prov := range st.pass.Provides() {
				provided[prov] = true
			}
		}
		return nil
	}
	return visit(p.steps)
}

// Run executes the pipeline against one tree. Passes run strictly
// sequentially in declared order; the first failure aborts the remainder
// and is returned alongside the log accumulated so far.
func (p *Pipeline) Run(t *ftree.Tree) ([]LogEntry, error) {
	var log []LogEntry
	for _, st := range p.steps {
		var err error
		if st.group != nil {
			log, err = p.runFixpoint(t, st, log)
		} else {
			log, _, err = p.runPass(t, st, 0, log)
		}
		if err != nil {
			return log, err
		}
	}
	return log, nil
}

func (p *Pipeline) runPass(t *ftree.Tree, st step, round int, log []LogEntry) ([]LogEntry, pass.Status, error) {
	start := time.Now()
	r := st.pass.Apply(t, st.cfg)
	slog.Debug("pass.timing", "pipeline", p.name, "pass", st.pass.Name(),
		"status", r.Status, "elapsed", time.Since(start))

	log = append(log, LogEntry{
		Pass:        st.pass.Name(),
		Status:      r.Status,
		Summary:     r.Summary,
		Details:     r.Details,
		Diagnostics: r.Diagnostics,
		Round:       round,
	})
	if r.Status == pass.Failed {
		return log, r.Status, &PassError{Pass: st.pass.Name(), Kind: st.pass.Kind(), Err: r.Err}
	}
	return log, r.Status, nil
}

// runFixpoint applies the group's passes round by round until a full round
// yields Unchanged for every pass, or the iteration bound is exceeded.
func (p *Pipeline) runFixpoint(t *ftree.Tree, group step, log []LogEntry) ([]LogEntry, error) {
	for round := 1; round <= group.maxIter; round++ {
		changed := false
		for _, st := range group.group {
			var (
				status pass.Status
				err    error
			)
			log, status, err = p.runPass(t, st, round, log)
			if err != nil {
				return log, err
			}
			if status == pass.Changed {
				changed = true
			}
		}
		if !changed {
			return log, nil
		}
	}
	return log, fmt.Errorf("%w after %d round(s)", ErrFixpointNotReached, group.maxIter)
}
