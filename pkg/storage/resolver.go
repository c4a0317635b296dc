package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Resolver turns blob references into local files and local files into
// blob references. A reference is the storage key.
type Resolver struct {
	store System
}

func NewResolver(store System) *Resolver {
	return &Resolver{store: store}
}

// Store exposes the underlying System.
func (r *Resolver) Store() System {
	return r.store
}

// Fetch copies the blob at ref to dest and returns dest. A partial copy is
// removed on failure.
func (r *Resolver) Fetch(ctx context.Context, ref, dest string) (string, error) {
	rc, err := r.store.Download(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	return dest, nil
}

// Register uploads the local file at src under key and returns the reference.
func (r *Resolver) Register(ctx context.Context, key, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", src, err)
	}
	defer f.Close()

	if err := r.store.Upload(ctx, key, f, ContentType(key)); err != nil {
		return "", err
	}
	return key, nil
}

// Put uploads reader under a fresh key beneath prefix, keeping the
// extension of name, and returns the reference.
func (r *Resolver) Put(ctx context.Context, prefix, name string, reader io.Reader) (string, error) {
	key := NewKey(prefix, name)
	if err := r.store.Upload(ctx, key, reader, ContentType(name)); err != nil {
		return "", err
	}
	return key, nil
}

// NewKey returns a unique key beneath prefix carrying the lowercased
// extension of name.
func NewKey(prefix, name string) string {
	ext := strings.ToLower(path.Ext(filepath.Base(name)))
	return path.Join(prefix, uuid.NewString()+ext)
}

// ContentType derives a MIME type from the key's extension.
func ContentType(key string) string {
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".h5p":
		return "application/zip"
	case ".pdf":
		return "application/pdf"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
