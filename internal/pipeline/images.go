package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Validate checks image inputs and annotates them with their dimensions.
type Validate struct{}

func (Validate) Name() string { return StageValidate }

func (Validate) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	switch {
	case len(in.Inputs) == 0:
		return Payload{}, fmt.Errorf("%w: no images", ErrInvalidInput)
	case len(in.Inputs) > at.Config.MaxImages:
		return Payload{}, fmt.Errorf("%w: %d images exceeds limit of %d", ErrInvalidInput, len(in.Inputs), at.Config.MaxImages)
	}

	images := make([]Image, len(in.Inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(at.Config.Workers * 2)

	for i, path := range in.Inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := probe(path)
			if err != nil {
				return fmt.Errorf("%w: image %d: %v", ErrInvalidInput, i+1, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Payload{}, err
	}

	at.Progress(1, fmt.Sprintf("Validated %d images", len(images)))

	out := in
	out.Images = images
	return out, nil
}

// probe decodes the image header at path. Zero dimensions are rejected.
func probe(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Image{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("%s has zero dimensions", path)
	}

	return Image{
		Path:   path,
		MIME:   "image/" + format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
