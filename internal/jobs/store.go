package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store holds the authoritative state of every job. Reads return snapshots
// that never combine fields from different versions. Writes to one job are
// serialized; writes to different jobs do not contend.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// Update applies fn to a private copy of the job and commits the result
	// only if fn succeeds and the result is a legal successor of the current
	// state. The committed snapshot is returned.
	Update(ctx context.Context, id uuid.UUID, fn func(*Job) error) (*Job, error)

	// RequestCancel flags a non-terminal job for cooperative cancellation.
	RequestCancel(ctx context.Context, id uuid.UUID) (*Job, error)

	ListByPhase(ctx context.Context, phase Phase) ([]*Job, error)

	// ListExpired returns terminal jobs last updated before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error)

	// Delete removes a job record. Only retention housekeeping calls it.
	Delete(ctx context.Context, id uuid.UUID) error
}

func requestCancel(j *Job) error {
	if j.Phase.Terminal() {
		return ErrTerminal
	}
	j.CancelRequested = true
	j.Message = "Cancellation requested"
	return nil
}
