package jobs

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for job operations.
var (
	ErrNotFound        = errors.New("job not found")
	ErrDuplicate       = errors.New("job already exists")
	ErrInvalidKind     = errors.New("invalid job kind")
	ErrInvalidInputs   = errors.New("invalid job inputs")
	ErrInvalidID       = errors.New("invalid job id")
	ErrFileTooLarge    = errors.New("file exceeds maximum upload size")
	ErrNotReady        = errors.New("job output not available")
	ErrInvariant       = errors.New("job invariant violated")
	ErrConflict        = errors.New("job modified concurrently")
	ErrTerminal        = errors.New("job already finished")
	ErrUnknownStore    = errors.New("unknown job store")
	ErrStoreNotEnabled = errors.New("job store requires a database")
)

// MapHTTPStatus maps job domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidInputs),
		errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrTerminal), errors.Is(err, ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	ErrorInvalidInput     ErrorKind = "invalid_input"
	ErrorExternalTool     ErrorKind = "external_tool_error"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorIncompleteOutput ErrorKind = "incomplete_output"
	ErrorManifest         ErrorKind = "manifest_error"
	ErrorPackaging        ErrorKind = "packaging_error"
	ErrorCancelled        ErrorKind = "cancelled"
)

// Retryable reports whether a stage failing with this kind may be re-run.
// Only subprocess-level failures are transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorExternalTool, ErrorTimeout, ErrorIncompleteOutput:
		return true
	}
	return false
}

// Failure is the structured error recorded on a failed job.
type Failure struct {
	Kind        ErrorKind `json:"kind"`
	Stage       string    `json:"stage,omitempty"`
	Message     string    `json:"message"`
	Diagnostics string    `json:"diagnostics,omitempty"`
}

func (f *Failure) Error() string {
	if f.Stage == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Stage, f.Kind, f.Message)
}
