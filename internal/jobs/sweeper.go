package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JaimeStill/folio/pkg/lifecycle"
	"github.com/JaimeStill/folio/pkg/storage"
)

// UploadPrefix is the key prefix for blobs created by the upload boundary.
// The sweeper deletes these along with the job that consumed them.
const UploadPrefix = "uploads"

// Sweeper removes terminal jobs, and the blobs they own, once they have
// been idle longer than the retention window.
type Sweeper struct {
	store     Store
	blobs     storage.System
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

func NewSweeper(store Store, blobs storage.System, cfg *Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		blobs:     blobs,
		retention: cfg.RetentionDuration(),
		interval:  cfg.SweepIntervalDuration(),
		logger:    logger.With("system", "sweeper"),
	}
}

// Start runs Sweep every interval until the coordinator shuts down.
func (s *Sweeper) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting job sweeper", "retention", s.retention, "interval", s.interval)

	lc.Go(func(ctx context.Context) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("job sweeper stopped")
				return
			case now := <-ticker.C:
				if _, err := s.Sweep(ctx, now); err != nil {
					s.logger.Error("job sweep failed", "error", err)
				}
			}
		}
	})

	return nil
}

// Sweep deletes every job that expired as of now and returns how many
// records were removed. Blob deletion failures are logged, not returned.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpired(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, j := range expired {
		for _, key := range ownedBlobs(j) {
			if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("blob delete failed", "job_id", j.ID, "key", key, "error", err)
			}
		}

		if err := s.store.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("job delete failed", "job_id", j.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("expired jobs removed", "count", removed)
	}
	return removed, nil
}

func ownedBlobs(j *Job) []string {
	var keys []string
	if j.OutputRef != "" {
		keys = append(keys, j.OutputRef)
	}
	for _, ref := range j.InputRefs {
		if strings.HasPrefix(ref, UploadPrefix+"/") {
			keys = append(keys, ref)
		}
	}
	return keys
}
