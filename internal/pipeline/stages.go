package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/pkg/h5p"
	"github.com/JaimeStill/folio/pkg/pptx"
)

// Compose lays out one full-bleed slide per image, in image order.
type Compose struct{}

func (Compose) Name() string { return StageCompose }

func (Compose) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	if len(in.Images) == 0 {
		return Payload{}, fmt.Errorf("%w: no images to compose", ErrInvalidInput)
	}

	pictures := make([]pptx.Picture, len(in.Images))
	for i, img := range in.Images {
		pictures[i] = pptx.Picture{Source: img.Path, MIME: img.MIME}
	}

	deck, err := pptx.New(at.Title, pictures)
	if err != nil {
		return Payload{}, err
	}

	out := in
	out.Deck = deck
	return out, nil
}

// Emit writes the composed deck to a slide file.
type Emit struct{}

func (Emit) Name() string { return StageEmit }

func (Emit) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	if in.Deck == nil {
		return Payload{}, fmt.Errorf("%w: no deck composed", pptx.ErrEmptyDeck)
	}

	dest := filepath.Join(at.WorkDir, "presentation.pptx")
	if err := pptx.WriteFile(dest, in.Deck); err != nil {
		return Payload{}, err
	}

	out := in
	out.Artifact = dest
	return out, nil
}

// BuildManifest describes one slide per image using the content type the
// job kind selects.
type BuildManifest struct{}

func (BuildManifest) Name() string { return StageManifest }

func (BuildManifest) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	images := make([]h5p.Image, len(in.Images))
	for i, img := range in.Images {
		images[i] = h5p.Image{
			Source: img.Path,
			MIME:   img.MIME,
			Width:  img.Width,
			Height: img.Height,
		}
	}

	m, err := h5p.Build(contentType(at.Kind), at.Title, images)
	if err != nil {
		return Payload{}, err
	}

	out := in
	out.Manifest = m
	return out, nil
}

// Assemble writes the manifest and its assets into an interactive package.
type Assemble struct{}

func (Assemble) Name() string { return StageAssemble }

func (Assemble) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	if in.Manifest == nil {
		return Payload{}, fmt.Errorf("%w: no manifest built", h5p.ErrPackaging)
	}

	dest := filepath.Join(at.WorkDir, "package.h5p")
	if err := h5p.WriteFile(dest, in.Manifest); err != nil {
		return Payload{}, err
	}

	out := in
	out.Artifact = dest
	return out, nil
}

func contentType(kind jobs.Kind) h5p.ContentType {
	if kind == jobs.KindSlidesToPackage {
		return h5p.CoursePresentation
	}
	return h5p.ImageSlider
}
