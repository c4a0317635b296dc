package h5p

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/JaimeStill/folio/pkg/archive"
)

// ManifestPath is the fixed location of the package manifest.
const ManifestPath = "h5p.json"

// ContentPath is the fixed location of the slide descriptors.
const ContentPath = "content/content.json"

// Write serializes m and its assets as an H5P package. Entry order is
// h5p.json, content/content.json, then assets in slide order. Every asset
// is checked before the first byte is written.
func Write(w io.Writer, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrPackaging)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	assets := m.Assets()
	for _, a := range assets {
		if err := archive.RequireFiles(a.Source); err != nil {
			return fmt.Errorf("%w: asset %s: %v", ErrPackaging, a.Path, err)
		}
	}

	pkg, err := json.MarshalIndent(newPackageJSON(m), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPackaging, ManifestPath, err)
	}
	content, err := json.Marshal(m.ContentType.params(m))
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPackaging, ContentPath, err)
	}

	aw := archive.NewWriter(w)
	if err := aw.WriteBytes(ManifestPath, pkg); err != nil {
		return fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	if err := aw.WriteBytes(ContentPath, content); err != nil {
		return fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	for _, a := range assets {
		if err := aw.CopyFile(path.Join("content", a.Path), a.Source); err != nil {
			return fmt.Errorf("%w: %v", ErrPackaging, err)
		}
	}

	if err := aw.Close(); err != nil {
		return fmt.Errorf("%w: finalize archive: %v", ErrPackaging, err)
	}
	return nil
}

// WriteFile writes the package to dest, removing any partial file on failure.
func WriteFile(dest string, m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPackaging, err)
	}

	err := archive.WriteFile(dest, func(w io.Writer) error {
		return Write(w, m)
	})
	if err == nil {
		return nil
	}
	if errIsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPackaging, err)
}
