package infrastructure_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JaimeStill/folio/internal/config"
	"github.com/JaimeStill/folio/internal/infrastructure"
	"github.com/JaimeStill/folio/internal/jobs"
)

func loadConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FOLIO_STORAGE_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("FOLIO_JOBS_STORE", store)
	t.Setenv("FOLIO_DB_NAME", "folio")
	t.Setenv("FOLIO_DB_USER", "folio")

	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

func TestNewMemoryStore(t *testing.T) {
	infra, err := infrastructure.New(loadConfig(t, jobs.StoreMemory))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Database != nil {
		t.Error("Database built for the memory store")
	}
	if infra.Jobs == nil || infra.Storage == nil || infra.Resolver == nil || infra.Logger == nil {
		t.Errorf("infrastructure incomplete: %+v", infra)
	}
}

func TestNewPostgresStore(t *testing.T) {
	infra, err := infrastructure.New(loadConfig(t, jobs.StorePostgres))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Database == nil {
		t.Fatal("Database not built for the postgres store")
	}
	if err := infra.Ready(context.Background()); err == nil {
		t.Error("Ready() succeeded before startup")
	}
}

func TestNewStore(t *testing.T) {
	if _, err := infrastructure.NewStore(&jobs.Config{Store: jobs.StorePostgres}, nil); !errors.Is(err, jobs.ErrStoreNotEnabled) {
		t.Errorf("NewStore(postgres, nil) error = %v, want ErrStoreNotEnabled", err)
	}
	if _, err := infrastructure.NewStore(&jobs.Config{Store: "redis"}, nil); !errors.Is(err, jobs.ErrUnknownStore) {
		t.Errorf("NewStore(redis) error = %v, want ErrUnknownStore", err)
	}
}

func TestStartAndReady(t *testing.T) {
	infra, err := infrastructure.New(loadConfig(t, jobs.StoreMemory))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	infra.Lifecycle.WaitForStartup()
	if err := infra.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	if err := infra.Lifecycle.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
