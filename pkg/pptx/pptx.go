// Package pptx writes OOXML presentation decks in which every slide is a
// single picture stretched to the full slide.
package pptx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/JaimeStill/folio/pkg/archive"
)

// Widescreen 16:9 slide size in EMU (10in x 5.625in).
const (
	SlideWidth  int64 = 9144000
	SlideHeight int64 = 5143500
)

const ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

var (
	ErrEmptyDeck      = errors.New("deck has no slides")
	ErrMissingPicture = errors.New("slide picture missing")
)

// Picture is a local image placed on one slide.
type Picture struct {
	Source string
	MIME   string
}

// Deck is an ordered set of full-bleed picture slides.
type Deck struct {
	Title  string
	Width  int64
	Height int64
	Slides []Picture
}

// New builds a widescreen deck with one slide per picture, in order.
func New(title string, pictures []Picture) (*Deck, error) {
	if len(pictures) == 0 {
		return nil, ErrEmptyDeck
	}
	if strings.TrimSpace(title) == "" {
		title = "Presentation"
	}
	return &Deck{
		Title:  title,
		Width:  SlideWidth,
		Height: SlideHeight,
		Slides: append([]Picture(nil), pictures...),
	}, nil
}

type slideView struct {
	Index int
	RelID string
	Media string
	Name  string
}

type deckView struct {
	Title      string
	Width      int64
	Height     int64
	Slides     []slideView
	Extensions []mediaType
}

type mediaType struct {
	Ext  string
	MIME string
}

// Write serializes the deck. Parts are written in a fixed order so the same
// deck always produces the same bytes.
func Write(w io.Writer, d *Deck) error {
	if d == nil || len(d.Slides) == 0 {
		return ErrEmptyDeck
	}

	for i, p := range d.Slides {
		if err := archive.RequireFiles(p.Source); err != nil {
			return fmt.Errorf("%w: slide %d: %v", ErrMissingPicture, i+1, err)
		}
	}

	view := newDeckView(d)
	aw := archive.NewWriter(w)

	parts := []struct {
		name string
		tmpl *template.Template
		data any
	}{
		{"[Content_Types].xml", contentTypesTmpl, view},
		{"_rels/.rels", rootRelsTmpl, view},
		{"docProps/core.xml", coreTmpl, view},
		{"docProps/app.xml", appTmpl, view},
		{"ppt/presentation.xml", presentationTmpl, view},
		{"ppt/_rels/presentation.xml.rels", presentationRelsTmpl, view},
		{"ppt/presProps.xml", presPropsTmpl, view},
		{"ppt/theme/theme1.xml", themeTmpl, view},
		{"ppt/slideMasters/slideMaster1.xml", masterTmpl, view},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", masterRelsTmpl, view},
		{"ppt/slideLayouts/slideLayout1.xml", layoutTmpl, view},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", layoutRelsTmpl, view},
	}

	for _, p := range parts {
		if err := writeTemplate(aw, p.name, p.tmpl, p.data); err != nil {
			return err
		}
	}

	for _, s := range view.Slides {
		data := struct {
			deckView
			Slide slideView
		}{view, s}

		if err := writeTemplate(aw, fmt.Sprintf("ppt/slides/slide%d.xml", s.Index), slideTmpl, data); err != nil {
			return err
		}
		if err := writeTemplate(aw, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", s.Index), slideRelsTmpl, data); err != nil {
			return err
		}
	}

	for i, s := range view.Slides {
		if err := aw.CopyFile("ppt/media/"+s.Media, d.Slides[i].Source); err != nil {
			return err
		}
	}

	return aw.Close()
}

// WriteFile writes the deck to dest, removing any partial file on failure.
func WriteFile(dest string, d *Deck) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return archive.WriteFile(dest, func(w io.Writer) error {
		return Write(w, d)
	})
}

func writeTemplate(aw *archive.Writer, name string, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return aw.WriteBytes(name, buf.Bytes())
}

func newDeckView(d *Deck) deckView {
	view := deckView{
		Title:  d.Title,
		Width:  d.Width,
		Height: d.Height,
		Slides: make([]slideView, len(d.Slides)),
	}

	seen := make(map[string]bool)
	for i, p := range d.Slides {
		ext, mime := mediaFor(p)
		view.Slides[i] = slideView{
			Index: i + 1,
			RelID: fmt.Sprintf("rId%d", i+3),
			Media: fmt.Sprintf("image%d%s", i+1, ext),
			Name:  fmt.Sprintf("Slide %d", i+1),
		}
		if !seen[ext] {
			seen[ext] = true
			view.Extensions = append(view.Extensions, mediaType{Ext: strings.TrimPrefix(ext, "."), MIME: mime})
		}
	}
	return view
}

func mediaFor(p Picture) (string, string) {
	ext := strings.ToLower(filepath.Ext(p.Source))
	switch ext {
	case ".jpg", ".jpeg":
		return ".jpeg", "image/jpeg"
	case ".gif":
		return ".gif", "image/gif"
	case ".bmp":
		return ".bmp", "image/bmp"
	case ".tif", ".tiff":
		return ".tiff", "image/tiff"
	case ".png":
		return ".png", "image/png"
	}

	switch p.MIME {
	case "image/jpeg":
		return ".jpeg", "image/jpeg"
	case "image/gif":
		return ".gif", "image/gif"
	default:
		return ".png", "image/png"
	}
}
