package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/folio/pkg/handlers"
	"github.com/JaimeStill/folio/pkg/routes"
	"github.com/JaimeStill/folio/pkg/storage"
)

// Submitter accepts new jobs for asynchronous execution. Submit returns as
// soon as the job is recorded; it never waits for conversion.
type Submitter interface {
	Submit(ctx context.Context, kind Kind, title string, refs []string) (*Job, error)
}

// SubmitRequest is the JSON body for submitting existing blob references.
type SubmitRequest struct {
	Kind      string   `json:"kind"`
	Title     string   `json:"title"`
	InputRefs []string `json:"input_refs"`
}

// Handler provides the HTTP submission and status boundary.
type Handler struct {
	store         Store
	submitter     Submitter
	resolver      *storage.Resolver
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler.
func NewHandler(
	store Store,
	submitter Submitter,
	resolver *storage.Resolver,
	logger *slog.Logger,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		store:         store,
		submitter:     submitter,
		resolver:      resolver,
		logger:        logger.With("handler", "jobs"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for job endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/jobs",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "GET", Pattern: "/{id}", Handler: h.Status},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
			{Method: "GET", Pattern: "/{id}/download", Handler: h.Download},
		},
	}
}

// Submit creates a job from either a multipart upload (kind, title, and one
// or more file parts) or a JSON body naming existing blob references.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var (
		kind  Kind
		title string
		refs  []string
		err   error
	)

	uploaded := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
	if uploaded {
		kind, title, refs, err = h.fromUpload(w, r)
	} else {
		kind, title, refs, err = h.fromJSON(r)
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	job, err := h.submitter.Submit(r.Context(), kind, title, refs)
	if err != nil {
		if uploaded {
			h.discard(r.Context(), refs)
		}
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// Status returns the current job snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	job, err := h.store.Get(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

// Cancel requests cooperative cancellation. The job fails with a cancelled
// error before its next stage starts.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	job, err := h.store.RequestCancel(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.logger.Info("cancellation requested", "job_id", id)
	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// Download streams the artifact of a succeeded job.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	job, err := h.store.Get(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if job.Phase != PhaseSucceeded {
		handlers.RespondError(w, h.logger, http.StatusConflict, fmt.Errorf("%w: job is %s", ErrNotReady, job.Phase))
		return
	}

	body, err := h.resolver.Store().Download(r.Context(), job.OutputRef)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", storage.ContentType(job.OutputRef))
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", ArtifactName(job)),
	)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("artifact stream interrupted", "job_id", job.ID, "error", err)
	}
}

func (h *Handler) fromJSON(r *http.Request) (Kind, string, []string, error) {
	var req SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrInvalidInputs, err)
	}

	kind, err := ParseKind(req.Kind)
	if err != nil {
		return "", "", nil, err
	}
	if err := kind.ValidateInputs(req.InputRefs); err != nil {
		return "", "", nil, err
	}
	return kind, req.Title, req.InputRefs, nil
}

func (h *Handler) fromUpload(w http.ResponseWriter, r *http.Request) (Kind, string, []string, error) {
	if r.ContentLength > h.maxUploadSize {
		return "", "", nil, ErrFileTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", nil, ErrFileTooLarge
		}
		return "", "", nil, fmt.Errorf("%w: %v", ErrInvalidInputs, err)
	}
	defer r.MultipartForm.RemoveAll()

	kind, err := ParseKind(r.FormValue("kind"))
	if err != nil {
		return "", "", nil, err
	}

	files := r.MultipartForm.File["file"]
	if err := kind.ValidateInputs(placeholders(len(files))); err != nil {
		return "", "", nil, err
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(files[0].Filename, filepath.Ext(files[0].Filename))
	}

	refs := make([]string, 0, len(files))
	for _, fh := range files {
		ref, err := h.upload(r.Context(), fh)
		if err != nil {
			h.discard(r.Context(), refs)
			return "", "", nil, err
		}
		refs = append(refs, ref)
	}
	return kind, title, refs, nil
}

// discard deletes uploaded blobs that no job will own. The sweeper only
// reaches blobs through job records.
func (h *Handler) discard(ctx context.Context, refs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := h.resolver.Store().Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("orphaned upload not removed", "key", ref, "error", err)
		}
	}
}

func (h *Handler) upload(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInputs, err)
	}
	defer f.Close()

	return h.resolver.Put(ctx, UploadPrefix, fh.Filename, f)
}

func placeholders(n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = "upload"
	}
	return refs
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// ArtifactName is the attachment filename for a job's output.
func ArtifactName(j *Job) string {
	name := strings.TrimSpace(unsafeFilename.ReplaceAllString(j.Title, "_"))
	if name == "" {
		name = "presentation"
	}
	return name + j.Kind.Extension()
}
