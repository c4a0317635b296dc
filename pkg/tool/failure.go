package tool

import "fmt"

// FailureKind classifies why an engine invocation did not produce its outputs.
type FailureKind string

// Failure kinds reported by the adapter.
const (
	KindExternalToolError FailureKind = "external_tool_error"
	KindTimeout           FailureKind = "timeout"
	KindIncompleteOutput  FailureKind = "incomplete_output"
)

// Failure is the typed outcome of an invocation that did not succeed.
// ExitCode is -1 when the process was killed or never exited normally.
type Failure struct {
	Kind        FailureKind
	Tool        string
	ExitCode    int
	Diagnostics string
	Truncated   bool
	Err         error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Kind == KindIncompleteOutput {
		return fmt.Sprintf("%s: %s: %v", f.Tool, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s (exit=%d): %v", f.Tool, f.Kind, f.ExitCode, f.Err)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}
