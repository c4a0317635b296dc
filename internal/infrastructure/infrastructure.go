// Package infrastructure assembles the shared systems every entry point
// needs: lifecycle coordination, logging, blob storage, the job store, and
// the database when the job store is backed by PostgreSQL.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/database"
	"github.com/JaimeStill/folio/pkg/lifecycle"
	"github.com/JaimeStill/folio/pkg/storage"
)

// Infrastructure holds the systems shared by the API module, the job
// runner, and the retention sweeper. Database is nil unless the job store
// is PostgreSQL.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Resolver  *storage.Resolver
	Jobs      jobs.Store
}

// New builds every system from cfg without starting any of them.
func New(cfg *config.Config) (*Infrastructure, error) {
	logger := NewLogger(cfg.Level())

	blobs, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Storage:   blobs,
		Resolver:  storage.NewResolver(blobs),
	}

	if cfg.UsesDatabase() {
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db
	}

	store, err := NewStore(&cfg.Jobs, infra.Database)
	if err != nil {
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	infra.Jobs = store

	return infra, nil
}

// NewLogger returns the root text logger on stderr.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewStore builds the job store selected by cfg. The PostgreSQL store
// requires db.
func NewStore(cfg *jobs.Config, db database.System) (jobs.Store, error) {
	switch cfg.Store {
	case jobs.StoreMemory:
		return jobs.NewMemoryStore(), nil
	case jobs.StorePostgres:
		if db == nil {
			return nil, jobs.ErrStoreNotEnabled
		}
		return jobs.NewPostgresStore(db.Connection()), nil
	}
	return nil, fmt.Errorf("%w: %q", jobs.ErrUnknownStore, cfg.Store)
}

// Start registers the database and storage startup and shutdown hooks.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}

// Ready reports whether startup completed and, when configured, the
// database answers a ping.
func (i *Infrastructure) Ready(ctx context.Context) error {
	if !i.Lifecycle.Ready() {
		return fmt.Errorf("startup in progress")
	}
	if i.Database != nil {
		return i.Database.Ready(ctx)
	}
	return nil
}
