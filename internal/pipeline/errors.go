package pipeline

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/h5p"
	"github.com/JaimeStill/folio/pkg/pptx"
	"github.com/JaimeStill/folio/pkg/storage"
	"github.com/JaimeStill/folio/pkg/tool"
)

var (
	// ErrInvalidInput marks malformed or empty source material.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIncompleteOutput marks a stage that reported outputs it did not produce.
	ErrIncompleteOutput = errors.New("incomplete output")
	// ErrClosed is returned by Submit after the runner has stopped.
	ErrClosed = errors.New("runner stopped")
)

const maxMessage = 512

// Classify converts any stage error into the structured failure recorded on
// the job. Errors without a known class are treated as transient engine
// failures.
func Classify(stage string, err error) *jobs.Failure {
	f := &jobs.Failure{
		Kind:    jobs.ErrorExternalTool,
		Stage:   stage,
		Message: truncate(err.Error(), maxMessage),
	}

	var tf *tool.Failure
	switch {
	case errors.Is(err, context.Canceled):
		f.Kind = jobs.ErrorCancelled
	case errors.As(err, &tf):
		f.Kind = jobs.ErrorKind(tf.Kind)
		f.Diagnostics = tf.Diagnostics
	case errors.Is(err, ErrInvalidInput), errors.Is(err, storage.ErrNotFound):
		f.Kind = jobs.ErrorInvalidInput
	case errors.Is(err, ErrIncompleteOutput):
		f.Kind = jobs.ErrorIncompleteOutput
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind = jobs.ErrorTimeout
	case errors.Is(err, h5p.ErrManifest):
		f.Kind = jobs.ErrorManifest
	case errors.Is(err, h5p.ErrPackaging),
		errors.Is(err, pptx.ErrEmptyDeck),
		errors.Is(err, pptx.ErrMissingPicture):
		f.Kind = jobs.ErrorPackaging
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}
