package jobs_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/storage"
)

func newBlobs(t *testing.T) storage.System {
	t.Helper()
	blobs, err := storage.New(
		&storage.Config{Backend: storage.BackendFilesystem, Root: t.TempDir()},
		slog.Default(),
	)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	return blobs
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := jobs.NewMemoryStore()
	blobs := newBlobs(t)

	put := func(key string) {
		if err := blobs.Upload(ctx, key, strings.NewReader("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Upload(%s) error = %v", key, err)
		}
	}
	put("uploads/in.pdf")
	put("shared/in.pdf")
	put("outputs/out.pptx")

	finished, _ := jobs.New(jobs.KindPDFToSlides, "a", []string{"uploads/in.pdf"})
	store.Create(ctx, finished)
	store.Update(ctx, finished.ID, func(j *jobs.Job) error { return j.Begin(0, "rasterize") })
	store.Update(ctx, finished.ID, func(j *jobs.Job) error { return j.Succeed("outputs/out.pptx") })

	external, _ := jobs.New(jobs.KindPDFToSlides, "b", []string{"shared/in.pdf"})
	store.Create(ctx, external)
	store.Update(ctx, external.ID, func(j *jobs.Job) error {
		return j.Fail(&jobs.Failure{Kind: jobs.ErrorCancelled, Message: "cancelled"})
	})

	pending, _ := jobs.New(jobs.KindPDFToSlides, "c", []string{"shared/in.pdf"})
	store.Create(ctx, pending)

	cfg := &jobs.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	sweeper := jobs.NewSweeper(store, blobs, cfg, slog.Default())

	if n, _ := sweeper.Sweep(ctx, time.Now()); n != 0 {
		t.Fatalf("Sweep(now) removed %d, want 0 inside retention", n)
	}

	n, err := sweeper.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep() removed %d, want 2", n)
	}

	for _, j := range []*jobs.Job{finished, external} {
		if _, err := store.Get(ctx, j.ID); !errors.Is(err, jobs.ErrNotFound) {
			t.Errorf("expired job %s still present: %v", j.Title, err)
		}
	}
	if _, err := store.Get(ctx, pending.ID); err != nil {
		t.Errorf("queued job removed: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{key: "uploads/in.pdf", want: false},
		{key: "outputs/out.pptx", want: false},
		{key: "shared/in.pdf", want: true},
	}
	for _, tt := range tests {
		if ok, _ := blobs.Exists(ctx, tt.key); ok != tt.want {
			t.Errorf("Exists(%s) = %v, want %v", tt.key, ok, tt.want)
		}
	}
}
