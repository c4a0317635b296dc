package jobs

import (
	"fmt"
	"slices"
	"time"
)

// Progress bounds while a job is running. 0 belongs to Queued and 100 to
// Succeeded, so a running job always reports strictly between them.
const (
	minRunningProgress = 1
	maxRunningProgress = 99
)

// StageProgress maps completed stages plus the fractional progress of the
// current stage onto a running percentage.
func StageProgress(completed int, frac float64, total int) int {
	if total <= 0 {
		return minRunningProgress
	}
	frac = min(max(frac, 0), 1)
	p := int(100 * (float64(completed) + frac) / float64(total))
	return min(max(p, minRunningProgress), maxRunningProgress)
}

// Begin moves the job into Running at stage index i. Stage 0 is entered
// from Queued; later stages only from Running(i-1).
func (j *Job) Begin(i int, name string) error {
	switch {
	case i == 0 && j.Phase == PhaseQueued:
	case i > 0 && j.Phase == PhaseRunning && j.Stage == i-1:
	default:
		return fmt.Errorf("%w: cannot begin stage %d from %s(%d)", ErrInvariant, i, j.Phase, j.Stage)
	}

	j.Phase = PhaseRunning
	j.Stage = i
	j.StageName = name
	j.Progress = max(j.Progress, minRunningProgress)
	return nil
}

// Advance raises progress and updates the status message. Progress never
// moves backwards and never leaves the running band.
func (j *Job) Advance(progress int, message string) error {
	if j.Phase != PhaseRunning {
		return fmt.Errorf("%w: progress update in %s", ErrInvariant, j.Phase)
	}
	progress = min(max(progress, minRunningProgress), maxRunningProgress)
	j.Progress = max(j.Progress, progress)
	if message != "" {
		j.Message = message
	}
	return nil
}

// Record appends one stage attempt to the history.
func (j *Job) Record(rec StageRecord) error {
	if j.Phase != PhaseRunning {
		return fmt.Errorf("%w: history append in %s", ErrInvariant, j.Phase)
	}
	j.History = append(j.History, rec)
	return nil
}

// Succeed completes a running job with its artifact reference.
func (j *Job) Succeed(outputRef string) error {
	if j.Phase != PhaseRunning {
		return fmt.Errorf("%w: succeed from %s", ErrInvariant, j.Phase)
	}
	if outputRef == "" {
		return fmt.Errorf("%w: succeed without output", ErrInvariant)
	}
	j.Phase = PhaseSucceeded
	j.Progress = 100
	j.OutputRef = outputRef
	j.Message = "Completed"
	return nil
}

// Fail terminates a queued or running job. Progress is retained, and a job
// failed straight from Queued leaves 0 for the running floor.
func (j *Job) Fail(f *Failure) error {
	if j.Phase.Terminal() {
		return fmt.Errorf("%w: fail from %s", ErrInvariant, j.Phase)
	}
	if f == nil {
		return fmt.Errorf("%w: fail without error", ErrInvariant)
	}
	j.Progress = min(max(j.Progress, minRunningProgress), maxRunningProgress)
	j.Phase = PhaseFailed
	fc := *f
	j.Error = &fc
	j.Message = f.Message
	return nil
}

// Validate checks the invariants that must hold for any observable job.
func (j *Job) Validate() error {
	switch j.Phase {
	case PhaseQueued:
		if j.Progress != 0 {
			return fmt.Errorf("%w: queued with progress %d", ErrInvariant, j.Progress)
		}
	case PhaseRunning:
		if j.Progress < minRunningProgress || j.Progress > maxRunningProgress {
			return fmt.Errorf("%w: running with progress %d", ErrInvariant, j.Progress)
		}
	case PhaseSucceeded:
		if j.Progress != 100 || j.OutputRef == "" {
			return fmt.Errorf("%w: succeeded with progress %d and output %q", ErrInvariant, j.Progress, j.OutputRef)
		}
	case PhaseFailed:
		if j.Error == nil || j.Progress < minRunningProgress || j.Progress > maxRunningProgress {
			return fmt.Errorf("%w: failed without error or with progress %d", ErrInvariant, j.Progress)
		}
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvariant, j.Phase)
	}

	if j.OutputRef != "" && j.Error != nil {
		return fmt.Errorf("%w: both output and error set", ErrInvariant)
	}
	if j.OutputRef != "" && j.Phase != PhaseSucceeded {
		return fmt.Errorf("%w: output set in %s", ErrInvariant, j.Phase)
	}
	if j.Error != nil && j.Phase != PhaseFailed {
		return fmt.Errorf("%w: error set in %s", ErrInvariant, j.Phase)
	}
	return nil
}

// ValidateTransition checks that next is a legal successor of prev: identity
// and inputs are immutable, terminal jobs are frozen, progress does not
// decrease while running, and history only grows by appending.
func ValidateTransition(prev, next *Job) error {
	if err := next.Validate(); err != nil {
		return err
	}

	if next.ID != prev.ID || next.Kind != prev.Kind || !slices.Equal(prev.InputRefs, next.InputRefs) {
		return fmt.Errorf("%w: identity or inputs changed", ErrInvariant)
	}
	if !next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: created_at changed", ErrInvariant)
	}
	if prev.Phase.Terminal() && !sameTerminal(prev, next) {
		return fmt.Errorf("%w: %s job modified", ErrTerminal, prev.Phase)
	}
	if prev.CancelRequested && !next.CancelRequested {
		return fmt.Errorf("%w: cancel request withdrawn", ErrInvariant)
	}

	if !legalPhaseStep(prev, next) {
		return fmt.Errorf("%w: %s(%d) -> %s(%d)", ErrInvariant, prev.Phase, prev.Stage, next.Phase, next.Stage)
	}
	if next.Progress < prev.Progress {
		return fmt.Errorf("%w: progress decreased %d -> %d", ErrInvariant, prev.Progress, next.Progress)
	}

	if len(next.History) < len(prev.History) {
		return fmt.Errorf("%w: history shrank", ErrInvariant)
	}
	for i := range prev.History {
		if !sameRecord(prev.History[i], next.History[i]) {
			return fmt.Errorf("%w: history entry %d rewritten", ErrInvariant, i)
		}
	}
	return nil
}

func legalPhaseStep(prev, next *Job) bool {
	switch prev.Phase {
	case PhaseQueued:
		switch next.Phase {
		case PhaseQueued, PhaseFailed:
			return true
		case PhaseRunning:
			return next.Stage == 0
		}
	case PhaseRunning:
		switch next.Phase {
		case PhaseRunning:
			return next.Stage == prev.Stage || next.Stage == prev.Stage+1
		case PhaseSucceeded, PhaseFailed:
			return true
		}
	case PhaseSucceeded, PhaseFailed:
		return next.Phase == prev.Phase
	}
	return false
}

func sameTerminal(prev, next *Job) bool {
	return next.Phase == prev.Phase &&
		next.Progress == prev.Progress &&
		next.OutputRef == prev.OutputRef &&
		len(next.History) == len(prev.History) &&
		((next.Error == nil) == (prev.Error == nil))
}

func sameRecord(a, b StageRecord) bool {
	return a.Stage == b.Stage &&
		a.Attempt == b.Attempt &&
		a.Outcome == b.Outcome &&
		a.ErrorKind == b.ErrorKind &&
		a.Duration == b.Duration &&
		a.StartedAt.Equal(b.StartedAt)
}

func touch(j *Job) {
	j.Version++
	j.UpdatedAt = time.Now().UTC()
}
