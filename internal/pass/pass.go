// Package pass defines the transformation pass protocol and the canonical
// pass library. A pass is stateless between Apply calls: it may not retain
// node handles or tree state once Apply returns, so the same pass value can
// be reused across files and re-run for fixpoint composition.
package pass

import (
	"fmt"
	"sort"

	"github.com/fortree/fortree/internal/ftree"
)

// Status is the outcome of one Apply call.
type Status int

const (
	Unchanged Status = iota
	Changed
	Failed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Kind classifies what a pass is allowed to do to the tree.
type Kind int

const (
	// Finder passes only query and attach diagnostics, never mutate.
	Finder Kind = iota
	// Rewriter passes mutate and report a change summary.
	Rewriter
	// Validator passes check an invariant and fail the job if violated.
	Validator
)

func (k Kind) String() string {
	switch k {
	case Finder:
		return "finder"
	case Rewriter:
		return "rewriter"
	case Validator:
		return "validator"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Diagnostic is a finding attached by a Finder pass.
type Diagnostic struct {
	Scope   string // unit or scope the finding applies to
	Message string
}

// Result reports what one Apply call did.
type Result struct {
	Status      Status
	Summary     string       // one-line change summary when Changed
	Details     []string     // per-change entries (e.g. removed identifiers)
	Diagnostics []Diagnostic // Finder output
	Err         error        // reason when Failed
}

// NoChange is the canonical unchanged result.
func NoChange() Result { return Result{Status: Unchanged} }

// DidChange builds a Changed result.
func DidChange(summary string, details ...string) Result {
	return Result{Status: Changed, Summary: summary, Details: details}
}

// Fail builds a Failed result.
func Fail(err error) Result { return Result{Status: Failed, Err: err} }

// Config carries per-pass options from the pipeline specification.
type Config map[string]string

// Get returns an option value or a default.
func (c Config) Get(key, def string) string {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

// Bool interprets an option as a boolean flag.
func (c Config) Bool(key string) bool {
	v := c[key]
	return v == "true" || v == "1" || v == "yes"
}

// Pass is one self-contained transformation or check applied to a tree.
//
// Apply must be idempotent-safe: re-running a pass on its own output, with
// the triggering pattern gone, must return Unchanged. Requires and Provides
// declare named tree invariants used by the pipeline composer for its
// best-effort ordering check; a required invariant prefixed with "!" means
// the invariant must NOT have been established by a preceding pass.
type Pass interface {
	Name() string
	Kind() Kind
	Requires() []string
	Provides() []string
	Apply(t *ftree.Tree, cfg Config) Result
}

// Context enumerates the passes available to a pipeline. There is no global
// registry; tests construct isolated contexts without shared state.
type Context struct {
	passes map[string]Pass
}

// NewContext builds a context from an explicit pass list.
func NewContext(passes ...Pass) *Context {
	c := &Context{passes: make(map[string]Pass, len(passes))}
	for _, p := range passes {
		c.passes[p.Name()] = p
	}
	return c
}

// DefaultContext returns a context holding the canonical pass library.
func DefaultContext() *Context {
	return NewContext(
		&DeleteCalls{},
		&IfConstruct{},
		&RemoveUnusedDecls{},
		&AccDirectives{},
		&ImplicitNone{},
		&WellFormed{},
	)
}

// Lookup returns a pass by name.
func (c *Context) Lookup(name string) (Pass, bool) {
	p, ok := c.passes[name]
	return p, ok
}

// Names returns the available pass names, sorted.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.passes))
	for n := range c.passes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
