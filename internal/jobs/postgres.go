package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/folio/pkg/repository"
)

const columns = `id, kind, title, phase, stage, stage_name, progress, message,
	input_refs, output_ref, error, history, cancel_requested, version, created_at, updated_at`

type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by the jobs table. Updates lock
// the job row for the duration of the read-modify-write.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Create(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	e, err := encode(job)
	if err != nil {
		return err
	}

	q := `INSERT INTO jobs (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	args := []any{
		job.ID, job.Kind, job.Title, job.Phase, job.Stage, job.StageName, job.Progress, job.Message,
		e.refs, e.outputRef, e.failure, e.history, job.CancelRequested, job.Version, job.CreatedAt, job.UpdatedAt,
	}

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, q, args...)
		return struct{}{}, err
	})
	return mapError(err)
}

func (s *postgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	q := `SELECT ` + columns + ` FROM jobs WHERE id = $1`

	j, err := repository.QueryOne(ctx, s.db, q, []any{id}, scanJob)
	if err != nil {
		return nil, mapError(err)
	}
	return j, nil
}

func (s *postgresStore) Update(ctx context.Context, id uuid.UUID, fn func(*Job) error) (*Job, error) {
	selectQ := `SELECT ` + columns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	updateQ := `UPDATE jobs SET
		phase = $2, stage = $3, stage_name = $4, progress = $5, message = $6,
		output_ref = $7, error = $8, history = $9, cancel_requested = $10,
		version = $11, updated_at = $12
		WHERE id = $1 AND version = $13`

	j, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*Job, error) {
		prev, err := repository.QueryOne(ctx, tx, selectQ, []any{id}, scanJob)
		if err != nil {
			return nil, err
		}

		next := prev.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		if err := ValidateTransition(prev, next); err != nil {
			return nil, err
		}

		next.Version = prev.Version
		touch(next)

		e, err := encode(next)
		if err != nil {
			return nil, err
		}

		args := []any{
			next.ID, next.Phase, next.Stage, next.StageName, next.Progress, next.Message,
			e.outputRef, e.failure, e.history, next.CancelRequested, next.Version, next.UpdatedAt,
			prev.Version,
		}
		if err := repository.ExecExpectOne(ctx, tx, updateQ, args...); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return j, nil
}

func (s *postgresStore) RequestCancel(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Update(ctx, id, requestCancel)
}

func (s *postgresStore) ListByPhase(ctx context.Context, phase Phase) ([]*Job, error) {
	q := `SELECT ` + columns + ` FROM jobs WHERE phase = $1 ORDER BY created_at`

	jobs, err := repository.QueryMany(ctx, s.db, q, []any{phase}, scanJob)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", phase, err)
	}
	return jobs, nil
}

func (s *postgresStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	q := `SELECT ` + columns + ` FROM jobs
		WHERE phase IN ($1, $2) AND updated_at < $3
		ORDER BY created_at`

	jobs, err := repository.QueryMany(ctx, s.db, q, []any{PhaseSucceeded, PhaseFailed, cutoff}, scanJob)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	return jobs, nil
}

func (s *postgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM jobs WHERE id = $1", id)
	})
	return mapError(err)
}

func mapError(err error) error {
	err = repository.MapError(err, ErrNotFound, ErrDuplicate)
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

type encoded struct {
	refs      string
	history   string
	failure   any
	outputRef sql.NullString
}

func encode(j *Job) (encoded, error) {
	refs, err := json.Marshal(j.InputRefs)
	if err != nil {
		return encoded{}, fmt.Errorf("encode input refs: %w", err)
	}
	history, err := json.Marshal(j.History)
	if err != nil {
		return encoded{}, fmt.Errorf("encode history: %w", err)
	}

	e := encoded{
		refs:      string(refs),
		history:   string(history),
		outputRef: sql.NullString{String: j.OutputRef, Valid: j.OutputRef != ""},
	}

	if j.Error != nil {
		failure, err := json.Marshal(j.Error)
		if err != nil {
			return encoded{}, fmt.Errorf("encode error: %w", err)
		}
		e.failure = string(failure)
	}
	return e, nil
}

func scanJob(s repository.Scanner) (*Job, error) {
	var (
		j         Job
		refs      []byte
		history   []byte
		failure   []byte
		outputRef sql.NullString
	)

	err := s.Scan(
		&j.ID,
		&j.Kind,
		&j.Title,
		&j.Phase,
		&j.Stage,
		&j.StageName,
		&j.Progress,
		&j.Message,
		&refs,
		&outputRef,
		&failure,
		&history,
		&j.CancelRequested,
		&j.Version,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.OutputRef = outputRef.String
	if err := json.Unmarshal(refs, &j.InputRefs); err != nil {
		return nil, fmt.Errorf("decode input refs: %w", err)
	}
	if err := json.Unmarshal(history, &j.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(failure) > 0 {
		j.Error = &Failure{}
		if err := json.Unmarshal(failure, j.Error); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
	}
	if j.History == nil {
		j.History = []StageRecord{}
	}
	return &j, nil
}
