// Package delegation runs goals through a fixed hierarchy: a Director hands
// each goal to a fresh ProjectManager, which plans steps and runs them on
// named tool agents. It also provides a flat Orchestrator that picks a tool
// agent by description keywords.
package delegation

import (
	"errors"
	"fmt"
)

// Args carries keyword arguments for a task, such as "path" and "content".
type Args map[string]string

// Result is the outcome of running a task. Exactly one of Output or Err is meaningful.
type Result struct {
	Output string
	Err    error
}

// OK wraps a successful output.
func OK(output string) Result { return Result{Output: output} }

// Failed reports whether the task failed.
func (r Result) Failed() bool { return r.Err != nil }

// Text returns a displayable string for either outcome.
func (r Result) Text() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Output
}

// Failure is a delegation error whose message is already fit for display.
// Kind is a domain sentinel for errors.Is checks.
type Failure struct {
	Kind    error
	Message string
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Kind }

// Fail builds a failed Result.
func Fail(kind error, format string, args ...any) Result {
	return Result{Err: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// KindOf returns the sentinel behind a failed result, or nil.
func KindOf(r Result) error {
	var f *Failure
	if errors.As(r.Err, &f) {
		return f.Kind
	}
	return r.Err
}
