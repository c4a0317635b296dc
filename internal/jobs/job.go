// Package jobs implements the conversion job domain: the job record and its
// lifecycle invariants, the Store that holds authoritative job state, the
// HTTP submission boundary, and retention housekeeping.
package jobs

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind selects the conversion performed by a job.
type Kind string

const (
	KindPDFToSlides     Kind = "pdf-to-slides"
	KindImagesToPackage Kind = "images-to-package"
	KindSlidesToPackage Kind = "slides-to-package"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindPDFToSlides, KindImagesToPackage, KindSlidesToPackage}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Extension is the file extension of the artifact the kind produces.
func (k Kind) Extension() string {
	if k == KindPDFToSlides {
		return ".pptx"
	}
	return ".h5p"
}

// ValidateInputs checks the input reference count for the kind. Single
// document kinds take exactly one reference; image packaging takes one per image.
func (k Kind) ValidateInputs(refs []string) error {
	for _, ref := range refs {
		if ref == "" {
			return fmt.Errorf("%w: empty input reference", ErrInvalidInputs)
		}
	}

	switch k {
	case KindPDFToSlides, KindSlidesToPackage:
		if len(refs) != 1 {
			return fmt.Errorf("%w: %s requires exactly one input, got %d", ErrInvalidInputs, k, len(refs))
		}
	case KindImagesToPackage:
		if len(refs) == 0 {
			return fmt.Errorf("%w: %s requires at least one input", ErrInvalidInputs, k)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
	return nil
}

// Phase is the coarse job state. A running job additionally carries the
// index of its current stage.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Outcome is the result of one stage attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// StageRecord is one entry of a job's append-only attempt history.
type StageRecord struct {
	Stage     string        `json:"stage"`
	Attempt   int           `json:"attempt"`
	Outcome   Outcome       `json:"outcome"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// Job is one end-to-end conversion request.
type Job struct {
	ID              uuid.UUID     `json:"id"`
	Kind            Kind          `json:"kind"`
	Title           string        `json:"title"`
	Phase           Phase         `json:"state"`
	Stage           int           `json:"stage"`
	StageName       string        `json:"stage_name,omitempty"`
	Progress        int           `json:"progress"`
	Message         string        `json:"message,omitempty"`
	InputRefs       []string      `json:"input_refs"`
	OutputRef       string        `json:"output_ref,omitempty"`
	Error           *Failure      `json:"error,omitempty"`
	History         []StageRecord `json:"history"`
	CancelRequested bool          `json:"cancel_requested"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// New creates a queued job with a fresh identifier.
func New(kind Kind, title string, refs []string) (*Job, error) {
	if err := kind.ValidateInputs(refs); err != nil {
		return nil, err
	}
	if title == "" {
		title = "Presentation"
	}

	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Title:     title,
		Phase:     PhaseQueued,
		Message:   "Queued",
		InputRefs: slices.Clone(refs),
		History:   []StageRecord{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *Job) Clone() *Job {
	c := *j
	c.InputRefs = slices.Clone(j.InputRefs)
	c.History = slices.Clone(j.History)
	if c.History == nil {
		c.History = []StageRecord{}
	}
	if j.Error != nil {
		f := *j.Error
		c.Error = &f
	}
	return &c
}
