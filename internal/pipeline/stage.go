// Package pipeline executes conversion jobs: it orders stages per job kind,
// runs them with retry and cooperative cancellation, reports progress
// through the job store, and schedules jobs on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/h5p"
	"github.com/JaimeStill/folio/pkg/pptx"
	"github.com/JaimeStill/folio/pkg/tool"
)

// Stage is one typed transformation step. Run must not modify in; it
// returns a new payload carrying its outputs.
type Stage interface {
	Name() string
	Run(ctx context.Context, at *Attempt, in Payload) (Payload, error)
}

// Image is a local raster file with its probed dimensions.
type Image struct {
	Path   string
	MIME   string
	Width  int
	Height int
}

// Payload carries typed outputs from one stage to the next.
type Payload struct {
	Inputs   []string
	Images   []Image
	Deck     *pptx.Deck
	Manifest *h5p.Manifest
	Artifact string
}

// Attempt is the execution context of one stage attempt. WorkDir is
// exclusive to the attempt.
type Attempt struct {
	JobID   uuid.UUID
	Kind    jobs.Kind
	Title   string
	WorkDir string
	Tools   tool.Invoker
	Timeout time.Duration
	Config  *Config
	Logger  *slog.Logger

	progress func(frac float64, message string)
}

// Progress reports fractional completion of the current stage.
func (a *Attempt) Progress(frac float64, message string) {
	if a.progress != nil {
		a.progress(frac, message)
	}
}

// Plan returns the ordered stages for kind.
func Plan(kind jobs.Kind) ([]Stage, error) {
	switch kind {
	case jobs.KindPDFToSlides:
		return []Stage{Rasterize{}, Compose{}, Emit{}}, nil
	case jobs.KindImagesToPackage:
		return []Stage{Validate{}, BuildManifest{}, Assemble{}}, nil
	case jobs.KindSlidesToPackage:
		return []Stage{Rasterize{}, BuildManifest{}, Assemble{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", jobs.ErrInvalidKind, kind)
}

// verify checks that every file a stage claims to have produced exists and
// is non-empty before the next stage may start.
func verify(out Payload) error {
	paths := make([]string, 0, len(out.Images)+1)
	for _, img := range out.Images {
		paths = append(paths, img.Path)
	}
	if out.Artifact != "" {
		paths = append(paths, out.Artifact)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("%w: %s", ErrIncompleteOutput, p)
		}
	}
	return nil
}
