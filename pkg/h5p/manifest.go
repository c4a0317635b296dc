package h5p

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// AssetCategory is the archive subdirectory (beneath content/) holding slide images.
const AssetCategory = "images"

// Image is a converted image ready to be embedded in a package.
type Image struct {
	Source string
	MIME   string
	Width  int
	Height int
}

// Asset is an embedded file: Path is relative to the archive content/
// directory, Source is the local file whose bytes are embedded.
type Asset struct {
	Path   string
	Source string
	MIME   string
	Width  int
	Height int
}

// Element places one asset on a slide. Geometry is in percent of the slide.
type Element struct {
	Library Library
	Asset   Asset
	Alt     string
	X       float64
	Y       float64
	Width   float64
	Height  float64
}

// Slide is an ordered set of elements.
type Slide struct {
	Elements []Element
}

// Manifest is the structural metadata written into a package.
type Manifest struct {
	Title        string
	ContentType  ContentType
	Slides       []Slide
	Dependencies []Library
}

// Build constructs a manifest with one full-bleed slide per image, in
// input order. Every image must already exist on disk.
func Build(ct ContentType, title string, images []Image) (*Manifest, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrManifest)
	}
	if strings.TrimSpace(title) == "" {
		title = "Presentation"
	}

	slides := make([]Slide, len(images))
	for i, img := range images {
		info, err := os.Stat(img.Source)
		if err != nil || info.Size() == 0 {
			return nil, fmt.Errorf("%w: asset %d unavailable: %s", ErrManifest, i+1, img.Source)
		}

		slides[i] = Slide{
			Elements: []Element{{
				Library: LibImage,
				Asset: Asset{
					Path:   assetPath(i, img),
					Source: img.Source,
					MIME:   img.MIME,
					Width:  img.Width,
					Height: img.Height,
				},
				Alt:    fmt.Sprintf("Slide %d", i+1),
				Width:  100,
				Height: 100,
			}},
		}
	}

	m := &Manifest{
		Title:        title,
		ContentType:  ct,
		Slides:       slides,
		Dependencies: append([]Library(nil), ct.Dependencies...),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks internal consistency: at least one slide, every element
// library resolves to a declared dependency, and asset paths are unique.
func (m *Manifest) Validate() error {
	if len(m.Slides) == 0 {
		return fmt.Errorf("%w: no slides", ErrManifest)
	}
	if !Resolves(m.Dependencies, m.ContentType.Main) {
		return fmt.Errorf("%w: main library %s not in dependencies", ErrManifest, m.ContentType.Main)
	}

	seen := make(map[string]bool)
	for i, s := range m.Slides {
		if len(s.Elements) == 0 {
			return fmt.Errorf("%w: slide %d has no elements", ErrManifest, i+1)
		}
		for _, e := range s.Elements {
			if !Resolves(m.Dependencies, e.Library) {
				return fmt.Errorf("%w: slide %d references unresolved library %s", ErrManifest, i+1, e.Library)
			}
			if seen[e.Asset.Path] {
				return fmt.Errorf("%w: duplicate asset path %s", ErrManifest, e.Asset.Path)
			}
			seen[e.Asset.Path] = true
		}
	}
	return nil
}

// Assets returns every asset in slide order, then element order.
func (m *Manifest) Assets() []Asset {
	var assets []Asset
	for _, s := range m.Slides {
		for _, e := range s.Elements {
			assets = append(assets, e.Asset)
		}
	}
	return assets
}

func assetPath(i int, img Image) string {
	ext := strings.ToLower(filepath.Ext(img.Source))
	if ext == "" {
		ext = extensionFor(img.MIME)
	}
	return path.Join(AssetCategory, fmt.Sprintf("slide-%d%s", i+1, ext))
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tif"
	default:
		return ".png"
	}
}
