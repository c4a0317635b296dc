package h5p_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/JaimeStill/folio/pkg/h5p"
)

func writePNG(t *testing.T, dir, name string, shade uint8) h5p.Image {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for x := range 16 {
		for y := range 9 {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return h5p.Image{Source: p, MIME: "image/png", Width: 16, Height: 9}
}

func fixtures(t *testing.T, n int) []h5p.Image {
	t.Helper()
	dir := t.TempDir()
	images := make([]h5p.Image, n)
	for i := range n {
		images[i] = writePNG(t, dir, "img"+string(rune('a'+i))+".png", uint8(i*40))
	}
	return images
}

func TestBuild(t *testing.T) {
	images := fixtures(t, 3)

	m, err := h5p.Build(h5p.CoursePresentation, "", images)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if m.Title != "Presentation" {
		t.Errorf("Title = %q, want default", m.Title)
	}
	if len(m.Slides) != 3 {
		t.Fatalf("len(Slides) = %d, want 3", len(m.Slides))
	}

	for i, a := range m.Assets() {
		want := "images/slide-" + string(rune('1'+i)) + ".png"
		if a.Path != want {
			t.Errorf("asset %d path = %s, want %s", i, a.Path, want)
		}
		if a.Source != images[i].Source {
			t.Errorf("asset %d source = %s, want %s", i, a.Source, images[i].Source)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		images func(t *testing.T) []h5p.Image
	}{
		{
			name:   "no images",
			images: func(t *testing.T) []h5p.Image { return nil },
		},
		{
			name: "missing source",
			images: func(t *testing.T) []h5p.Image {
				return []h5p.Image{{Source: filepath.Join(t.TempDir(), "gone.png"), MIME: "image/png"}}
			},
		},
		{
			name: "empty source",
			images: func(t *testing.T) []h5p.Image {
				p := filepath.Join(t.TempDir(), "empty.png")
				if err := os.WriteFile(p, nil, 0o600); err != nil {
					t.Fatalf("write: %v", err)
				}
				return []h5p.Image{{Source: p, MIME: "image/png"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h5p.Build(h5p.ImageSlider, "deck", tt.images(t))
			if !errors.Is(err, h5p.ErrManifest) {
				t.Errorf("Build() error = %v, want ErrManifest", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	images := fixtures(t, 2)

	t.Run("unresolved library", func(t *testing.T) {
		m, err := h5p.Build(h5p.CoursePresentation, "deck", images)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		m.Slides[1].Elements[0].Library = h5p.Library{MachineName: "H5P.Video", MajorVersion: 1, MinorVersion: 6}
		if err := m.Validate(); !errors.Is(err, h5p.ErrManifest) {
			t.Errorf("Validate() error = %v, want ErrManifest", err)
		}
	})

	t.Run("duplicate asset path", func(t *testing.T) {
		m, err := h5p.Build(h5p.CoursePresentation, "deck", images)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		m.Slides[1].Elements[0].Asset.Path = m.Slides[0].Elements[0].Asset.Path
		if err := m.Validate(); !errors.Is(err, h5p.ErrManifest) {
			t.Errorf("Validate() error = %v, want ErrManifest", err)
		}
	})

	t.Run("missing main library", func(t *testing.T) {
		m, err := h5p.Build(h5p.ImageSlider, "deck", images)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		m.Dependencies = m.Dependencies[1:]
		if err := m.Validate(); !errors.Is(err, h5p.ErrManifest) {
			t.Errorf("Validate() error = %v, want ErrManifest", err)
		}
	})
}

func TestWriteLayout(t *testing.T) {
	for _, ct := range []h5p.ContentType{h5p.CoursePresentation, h5p.ImageSlider} {
		t.Run(ct.Main.MachineName, func(t *testing.T) {
			images := fixtures(t, 4)
			m, err := h5p.Build(ct, "Quarterly Review", images)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			var buf bytes.Buffer
			if err := h5p.Write(&buf, m); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			if err != nil {
				t.Fatalf("open archive: %v", err)
			}

			want := []string{
				"h5p.json",
				"content/content.json",
				"content/images/slide-1.png",
				"content/images/slide-2.png",
				"content/images/slide-3.png",
				"content/images/slide-4.png",
			}
			if len(zr.File) != len(want) {
				t.Fatalf("entries = %d, want %d", len(zr.File), len(want))
			}
			for i, f := range zr.File {
				if f.Name != want[i] {
					t.Errorf("entry %d = %s, want %s", i, f.Name, want[i])
				}
			}

			rc, err := zr.File[0].Open()
			if err != nil {
				t.Fatalf("open h5p.json: %v", err)
			}
			defer rc.Close()

			var pkg struct {
				Title                 string        `json:"title"`
				MainLibrary           string        `json:"mainLibrary"`
				PreloadedDependencies []h5p.Library `json:"preloadedDependencies"`
			}
			if err := json.NewDecoder(rc).Decode(&pkg); err != nil {
				t.Fatalf("decode h5p.json: %v", err)
			}
			if pkg.Title != "Quarterly Review" {
				t.Errorf("title = %q", pkg.Title)
			}
			if pkg.MainLibrary != ct.Main.MachineName {
				t.Errorf("mainLibrary = %s, want %s", pkg.MainLibrary, ct.Main.MachineName)
			}
			if !h5p.Resolves(pkg.PreloadedDependencies, h5p.LibImage) {
				t.Error("preloadedDependencies missing H5P.Image")
			}
		})
	}
}

func TestWriteContentReferencesAssets(t *testing.T) {
	images := fixtures(t, 2)
	m, err := h5p.Build(h5p.CoursePresentation, "deck", images)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := h5p.Write(&buf, m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open content.json: %v", err)
	}
	defer rc.Close()

	var content bytes.Buffer
	if _, err := content.ReadFrom(rc); err != nil {
		t.Fatalf("read content.json: %v", err)
	}

	for _, a := range m.Assets() {
		if !strings.Contains(content.String(), `"path":"`+a.Path+`"`) {
			t.Errorf("content.json does not reference %s", a.Path)
		}
	}
	if !strings.Contains(content.String(), h5p.LibImage.String()) {
		t.Errorf("content.json does not reference %s", h5p.LibImage)
	}
}

func TestWriteDeterministic(t *testing.T) {
	images := fixtures(t, 3)

	render := func() []byte {
		m, err := h5p.Build(h5p.CoursePresentation, "deck", images)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		var buf bytes.Buffer
		if err := h5p.Write(&buf, m); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		return buf.Bytes()
	}

	first := render()
	second := render()
	if !bytes.Equal(first, second) {
		t.Error("Write() produced different bytes for identical inputs")
	}
}

func TestWriteMissingAsset(t *testing.T) {
	images := fixtures(t, 3)
	m, err := h5p.Build(h5p.ImageSlider, "deck", images)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := os.Remove(images[1].Source); err != nil {
		t.Fatalf("remove asset: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out.h5p")
	if err := h5p.WriteFile(dest, m); !errors.Is(err, h5p.ErrPackaging) {
		t.Fatalf("WriteFile() error = %v, want ErrPackaging", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("partial archive left at %s", dest)
	}
}

func TestParseLibrary(t *testing.T) {
	tests := []struct {
		in      string
		want    h5p.Library
		wantErr bool
	}{
		{in: "H5P.Image 1.1", want: h5p.LibImage},
		{in: "H5P.CoursePresentation 1.25", want: h5p.LibCoursePresentation},
		{in: "H5P.Image", wantErr: true},
		{in: "H5P.Image 1", wantErr: true},
		{in: "H5P.Image x.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := h5p.ParseLibrary(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLibrary() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLibrary() = %v, want %v", got, tt.want)
			}
		})
	}
}
