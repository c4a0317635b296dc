package pipeline_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
	"github.com/JaimeStill/folio/pkg/storage"
)

func writePNG(t *testing.T, dir, name string, w, h int, shade uint8) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

// writePDF writes a minimal document with the given number of blank pages.
func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fixtures require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// fakeRasterizer copies page into the output prefix pdftoppm would write
// and appends one line to the returned counter file per invocation.
func fakeRasterizer(t *testing.T, page string) (script, counter string) {
	t.Helper()
	counter = filepath.Join(t.TempDir(), "calls")
	script = writeScript(t, fmt.Sprintf(`echo "$2" >> %q
cp %q "${10}.png"`, counter, page))
	return script, counter
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Count(string(data), "\n")
}

type harness struct {
	store    jobs.Store
	blobs    storage.System
	resolver *storage.Resolver
	cfg      *pipeline.Config
	runner   *pipeline.Runner
}

func newHarness(t *testing.T, rasterizer string, opts ...pipeline.Option) *harness {
	t.Helper()

	blobs, err := storage.New(
		&storage.Config{Backend: storage.BackendFilesystem, Root: t.TempDir()},
		slog.Default(),
	)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}

	cfg := &pipeline.Config{
		WorkDir: t.TempDir(),
		Tools:   pipeline.ToolsConfig{Rasterizer: rasterizer, Converter: "false"},
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	h := &harness{
		store:    jobs.NewMemoryStore(),
		blobs:    blobs,
		resolver: storage.NewResolver(blobs),
		cfg:      cfg,
	}
	h.runner = pipeline.New(h.store, h.resolver, cfg, slog.Default(), opts...)
	return h
}

func (h *harness) setRetries(stage string, n int) {
	s := h.cfg.Stages[stage]
	s.MaxRetries = &n
	h.cfg.Stages[stage] = s
}

func (h *harness) upload(t *testing.T, paths ...string) []string {
	t.Helper()
	refs := make([]string, len(paths))
	for i, p := range paths {
		ref, err := h.resolver.Register(context.Background(), storage.NewKey(jobs.UploadPrefix, p), p)
		if err != nil {
			t.Fatalf("Register(%s) error = %v", p, err)
		}
		refs[i] = ref
	}
	return refs
}

func (h *harness) execute(t *testing.T, kind jobs.Kind, title string, refs []string) *jobs.Job {
	t.Helper()
	ctx := context.Background()

	job, err := h.runner.Create(ctx, kind, title, refs)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.runner.Execute(ctx, job.ID); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, err := h.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("terminal job invalid: %v", err)
	}
	return got
}

func (h *harness) output(t *testing.T, j *jobs.Job) []byte {
	t.Helper()
	rc, err := h.blobs.Download(context.Background(), j.OutputRef)
	if err != nil {
		t.Fatalf("Download(%s) error = %v", j.OutputRef, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return data
}

func waitTerminal(t *testing.T, store jobs.Store, id uuid.UUID) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if j.Phase.Terminal() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func openZip(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return zr
}

func readEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return data
	}
	t.Fatalf("entry %s missing", name)
	return nil
}

func stageNames(history []jobs.StageRecord) []string {
	names := make([]string, len(history))
	for i, rec := range history {
		names[i] = fmt.Sprintf("%s:%s", rec.Stage, rec.Outcome)
	}
	return names
}

// funcStage adapts a function to the Stage interface.
type funcStage struct {
	name string
	run  func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
	return s.run(ctx, at, in)
}
