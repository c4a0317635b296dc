package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
)

func TestImagesToPackage(t *testing.T) {
	dir := t.TempDir()
	sources := []string{
		writePNG(t, dir, "a.png", 40, 30, 10),
		writePNG(t, dir, "b.png", 64, 36, 20),
		writePNG(t, dir, "c.png", 30, 30, 30),
	}

	h := newHarness(t, "false")
	j := h.execute(t, jobs.KindImagesToPackage, "Gallery", h.upload(t, sources...))

	if j.Phase != jobs.PhaseSucceeded || j.Progress != 100 || j.Error != nil {
		t.Fatalf("job = %s/%d/%v", j.Phase, j.Progress, j.Error)
	}
	if want := "outputs/" + j.ID.String() + "/Gallery.h5p"; j.OutputRef != want {
		t.Errorf("OutputRef = %q, want %q", j.OutputRef, want)
	}

	want := []string{
		pipeline.StageValidate + ":succeeded",
		pipeline.StageManifest + ":succeeded",
		pipeline.StageAssemble + ":succeeded",
	}
	if got := stageNames(j.History); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}

	zr := openZip(t, h.output(t, j))
	if zr.File[0].Name != "h5p.json" || zr.File[1].Name != "content/content.json" {
		t.Fatalf("leading entries = %s, %s", zr.File[0].Name, zr.File[1].Name)
	}

	var manifest struct {
		MainLibrary  string           `json:"mainLibrary"`
		Dependencies []map[string]any `json:"preloadedDependencies"`
	}
	if err := json.Unmarshal(readEntry(t, zr, "h5p.json"), &manifest); err != nil {
		t.Fatalf("decode h5p.json: %v", err)
	}
	if manifest.MainLibrary != "H5P.ImageSlider" || len(manifest.Dependencies) == 0 {
		t.Errorf("manifest = %+v", manifest)
	}

	var content struct {
		ImageSlides []json.RawMessage `json:"imageSlides"`
	}
	if err := json.Unmarshal(readEntry(t, zr, "content/content.json"), &content); err != nil {
		t.Fatalf("decode content.json: %v", err)
	}
	if len(content.ImageSlides) != 3 {
		t.Fatalf("slides = %d, want 3", len(content.ImageSlides))
	}

	for i, src := range sources {
		name := fmt.Sprintf("images/slide-%d.png", i+1)
		if !bytes.Contains(content.ImageSlides[i], []byte(name)) {
			t.Errorf("slide %d does not reference %s", i+1, name)
		}

		want, _ := os.ReadFile(src)
		if got := readEntry(t, zr, "content/"+name); !bytes.Equal(got, want) {
			t.Errorf("asset %s does not match input %d", name, i+1)
		}
	}
}

func TestPackagesAreDeterministic(t *testing.T) {
	dir := t.TempDir()
	sources := []string{
		writePNG(t, dir, "a.png", 20, 20, 1),
		writePNG(t, dir, "b.png", 20, 20, 2),
	}

	h := newHarness(t, "false")
	first := h.execute(t, jobs.KindImagesToPackage, "Same", h.upload(t, sources...))
	second := h.execute(t, jobs.KindImagesToPackage, "Same", h.upload(t, sources...))

	if !bytes.Equal(h.output(t, first), h.output(t, second)) {
		t.Error("identical inputs produced different archives")
	}
}

func TestPDFToSlides(t *testing.T) {
	dir := t.TempDir()
	page := writePNG(t, dir, "page.png", 32, 18, 50)
	script, counter := fakeRasterizer(t, page)

	h := newHarness(t, script)
	j := h.execute(t, jobs.KindPDFToSlides, "Quarterly", h.upload(t, writePDF(t, dir, "q.pdf", 3)))

	if j.Phase != jobs.PhaseSucceeded {
		t.Fatalf("job = %s: %v", j.Phase, j.Error)
	}
	if n := countLines(t, counter); n != 3 {
		t.Errorf("rasterizer calls = %d, want 3", n)
	}
	if !strings.HasSuffix(j.OutputRef, "/Quarterly.pptx") {
		t.Errorf("OutputRef = %q", j.OutputRef)
	}

	zr := openZip(t, h.output(t, j))
	slides := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides++
		}
	}
	if slides != 3 {
		t.Errorf("slides = %d, want 3", slides)
	}
}

func TestSlidesToPackage(t *testing.T) {
	dir := t.TempDir()
	page := writePNG(t, dir, "page.png", 32, 18, 50)
	script, _ := fakeRasterizer(t, page)

	h := newHarness(t, script)
	j := h.execute(t, jobs.KindSlidesToPackage, "Lecture", h.upload(t, writePDF(t, dir, "deck.pdf", 2)))

	if j.Phase != jobs.PhaseSucceeded {
		t.Fatalf("job = %s: %v", j.Phase, j.Error)
	}

	zr := openZip(t, h.output(t, j))
	var manifest struct {
		MainLibrary string `json:"mainLibrary"`
	}
	json.Unmarshal(readEntry(t, zr, "h5p.json"), &manifest)
	if manifest.MainLibrary != "H5P.CoursePresentation" {
		t.Errorf("mainLibrary = %q", manifest.MainLibrary)
	}
	readEntry(t, zr, "content/images/slide-2.png")
}

func TestZeroPageDocument(t *testing.T) {
	dir := t.TempDir()
	page := writePNG(t, dir, "page.png", 8, 8, 0)
	script, counter := fakeRasterizer(t, page)

	h := newHarness(t, script)
	j := h.execute(t, jobs.KindPDFToSlides, "Empty", h.upload(t, writePDF(t, dir, "empty.pdf", 0)))

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorInvalidInput {
		t.Fatalf("job = %s/%v, want failed invalid_input", j.Phase, j.Error)
	}
	if len(j.History) != 1 {
		t.Errorf("history = %v, want 1 entry", stageNames(j.History))
	}
	if j.OutputRef != "" {
		t.Errorf("OutputRef = %q on failed job", j.OutputRef)
	}
	if n := countLines(t, counter); n != 0 {
		t.Errorf("rasterizer invoked %d times for an empty document", n)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(t.TempDir(), "calls")
	script := writeScript(t, fmt.Sprintf(`echo call >> %q
echo "render failed" >&2
exit 3`, counter))

	h := newHarness(t, script)
	h.setRetries(pipeline.StageRasterize, 1)
	j := h.execute(t, jobs.KindPDFToSlides, "Broken", h.upload(t, writePDF(t, dir, "b.pdf", 2)))

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorExternalTool {
		t.Fatalf("job = %s/%v, want failed external_tool_error", j.Phase, j.Error)
	}
	want := []string{
		pipeline.StageRasterize + ":failed",
		pipeline.StageRasterize + ":failed",
	}
	if got := stageNames(j.History); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	if !strings.Contains(j.Error.Diagnostics, "render failed") {
		t.Errorf("Diagnostics = %q", j.Error.Diagnostics)
	}
	if n := countLines(t, counter); n != 2 {
		t.Errorf("rasterizer calls = %d, want 2", n)
	}
}

func TestRetryRecovers(t *testing.T) {
	dir := t.TempDir()
	page := writePNG(t, dir, "page.png", 16, 9, 5)
	marker := filepath.Join(t.TempDir(), "failed-once")
	script := writeScript(t, fmt.Sprintf(`if [ ! -f %q ]; then touch %q; exit 1; fi
cp %q "${10}.png"`, marker, marker, page))

	h := newHarness(t, script)
	j := h.execute(t, jobs.KindPDFToSlides, "Flaky", h.upload(t, writePDF(t, dir, "f.pdf", 1)))

	if j.Phase != jobs.PhaseSucceeded {
		t.Fatalf("job = %s: %v", j.Phase, j.Error)
	}
	want := []string{
		pipeline.StageRasterize + ":failed",
		pipeline.StageRasterize + ":succeeded",
		pipeline.StageCompose + ":succeeded",
		pipeline.StageEmit + ":succeeded",
	}
	if got := stageNames(j.History); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	os.WriteFile(bad, []byte("not an image"), 0o644)

	h := newHarness(t, "false")
	h.setRetries(pipeline.StageValidate, 3)
	j := h.execute(t, jobs.KindImagesToPackage, "Bad", h.upload(t, writePNG(t, dir, "ok.png", 4, 4, 0), bad))

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorInvalidInput {
		t.Fatalf("job = %s/%v", j.Phase, j.Error)
	}
	if len(j.History) != 1 {
		t.Errorf("history = %v, want a single attempt", stageNames(j.History))
	}
}

func TestIncompleteOutputIsRetried(t *testing.T) {
	var calls atomic.Int32
	ghost := funcStage{
		name: "produce",
		run: func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
			calls.Add(1)
			out := in
			out.Artifact = filepath.Join(at.WorkDir, "never-written")
			return out, nil
		},
	}

	h := newHarness(t, "false", pipeline.WithPlan(jobs.KindImagesToPackage, ghost))
	h.setRetries("produce", 1)

	j := h.execute(t, jobs.KindImagesToPackage, "Ghost", h.upload(t, writePNG(t, t.TempDir(), "a.png", 4, 4, 0)))

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorIncompleteOutput {
		t.Fatalf("job = %s/%v", j.Phase, j.Error)
	}
	if calls.Load() != 2 || len(j.History) != 2 {
		t.Errorf("calls = %d, history = %d; want 2 each", calls.Load(), len(j.History))
	}
}

func TestCancellationBetweenStages(t *testing.T) {
	var later atomic.Int32
	var h *harness

	first := funcStage{
		name: "first",
		run: func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
			if _, err := h.store.RequestCancel(ctx, at.JobID); err != nil {
				return pipeline.Payload{}, err
			}
			return in, nil
		},
	}
	count := func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
		later.Add(1)
		return in, nil
	}

	h = newHarness(t, "false", pipeline.WithPlan(
		jobs.KindImagesToPackage,
		first,
		funcStage{name: "second", run: count},
		funcStage{name: "third", run: count},
	))

	j := h.execute(t, jobs.KindImagesToPackage, "Cancelled", h.upload(t, writePNG(t, t.TempDir(), "a.png", 4, 4, 0)))

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorCancelled {
		t.Fatalf("job = %s/%v, want failed cancelled", j.Phase, j.Error)
	}
	if j.Error.Stage != "second" {
		t.Errorf("Error.Stage = %q, want second", j.Error.Stage)
	}
	if len(j.History) != 1 {
		t.Errorf("history = %v, want 1 entry", stageNames(j.History))
	}
	if later.Load() != 0 {
		t.Errorf("later stages ran %d times", later.Load())
	}
}

func TestProgressReporting(t *testing.T) {
	var seen []int
	var h *harness

	observe := func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
		at.Progress(0.5, "halfway")
		j, _ := h.store.Get(ctx, at.JobID)
		seen = append(seen, j.Progress)
		if j.Message != "halfway" {
			t.Errorf("Message = %q", j.Message)
		}
		return in, nil
	}
	emit := func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
		path := filepath.Join(at.WorkDir, "out.pptx")
		os.WriteFile(path, []byte("PK"), 0o644)
		out := in
		out.Artifact = path
		return out, nil
	}

	h = newHarness(t, "false", pipeline.WithPlan(
		jobs.KindPDFToSlides,
		funcStage{name: "one", run: observe},
		funcStage{name: "two", run: observe},
		funcStage{name: "three", run: emit},
	))

	j := h.execute(t, jobs.KindPDFToSlides, "Progress", h.upload(t, writePDF(t, t.TempDir(), "p.pdf", 1)))
	if j.Phase != jobs.PhaseSucceeded {
		t.Fatalf("job = %s: %v", j.Phase, j.Error)
	}
	if !slices.Equal(seen, []int{16, 50}) {
		t.Errorf("progress at half of each stage = %v, want [16 50]", seen)
	}
}

func TestMissingInputBlob(t *testing.T) {
	h := newHarness(t, "false")
	j := h.execute(t, jobs.KindImagesToPackage, "Missing", []string{"uploads/absent.png"})

	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorInvalidInput {
		t.Fatalf("job = %s/%v", j.Phase, j.Error)
	}
	if j.Error.Stage != pipeline.StageValidate {
		t.Errorf("Error.Stage = %q, want %s", j.Error.Stage, pipeline.StageValidate)
	}
	want := []string{pipeline.StageValidate + ":failed"}
	if got := stageNames(j.History); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	if j.History[0].ErrorKind != jobs.ErrorInvalidInput {
		t.Errorf("history error kind = %s, want invalid_input", j.History[0].ErrorKind)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	var ran atomic.Int32
	count := func(ctx context.Context, at *pipeline.Attempt, in pipeline.Payload) (pipeline.Payload, error) {
		ran.Add(1)
		return in, nil
	}
	h := newHarness(t, "false", pipeline.WithPlan(
		jobs.KindImagesToPackage,
		funcStage{name: "first", run: count},
		funcStage{name: "second", run: count},
	))
	ctx := context.Background()

	job, err := h.runner.Create(ctx, jobs.KindImagesToPackage, "Queued", h.upload(t, writePNG(t, t.TempDir(), "a.png", 4, 4, 0)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.store.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("RequestCancel() error = %v", err)
	}
	if err := h.runner.Execute(ctx, job.ID); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	j, err := h.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := j.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if j.Phase != jobs.PhaseFailed || j.Error.Kind != jobs.ErrorCancelled {
		t.Fatalf("job = %s/%v, want failed cancelled", j.Phase, j.Error)
	}
	if j.Progress <= 0 {
		t.Errorf("Progress = %d, want > 0 outside queued", j.Progress)
	}
	if len(j.History) != 0 || ran.Load() != 0 {
		t.Errorf("history = %v, stage runs = %d; want none", stageNames(j.History), ran.Load())
	}
}

func TestExecuteRejectsStartedJob(t *testing.T) {
	h := newHarness(t, "false")
	j := h.execute(t, jobs.KindImagesToPackage, "Once", h.upload(t, writePNG(t, t.TempDir(), "a.png", 4, 4, 0)))

	if err := h.runner.Execute(context.Background(), j.ID); !errors.Is(err, jobs.ErrInvariant) {
		t.Errorf("second Execute() error = %v, want ErrInvariant", err)
	}
}
