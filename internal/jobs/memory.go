package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	mu  sync.Mutex
	job *Job
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// NewMemoryStore creates a process-local Store. Each job has its own lock;
// the map lock is held only to find or insert entries.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[uuid.UUID]*entry)}
}

func (s *memoryStore) Create(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[job.ID]; ok {
		return ErrDuplicate
	}
	s.entries[job.ID] = &entry{job: job.Clone()}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *memoryStore) Update(ctx context.Context, id uuid.UUID, fn func(*Job) error) (*Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := ValidateTransition(e.job, next); err != nil {
		return nil, err
	}

	next.Version = e.job.Version
	touch(next)
	e.job = next
	return next.Clone(), nil
}

func (s *memoryStore) RequestCancel(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Update(ctx, id, requestCancel)
}

func (s *memoryStore) ListByPhase(ctx context.Context, phase Phase) ([]*Job, error) {
	return s.list(func(j *Job) bool { return j.Phase == phase }), nil
}

func (s *memoryStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	return s.list(func(j *Job) bool {
		return j.Phase.Terminal() && j.UpdatedAt.Before(cutoff)
	}), nil
}

func (s *memoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) entry(id uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *memoryStore) list(match func(*Job) bool) []*Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*Job
	for _, e := range entries {
		e.mu.Lock()
		if match(e.job) {
			out = append(out, e.job.Clone())
		}
		e.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b *Job) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}
