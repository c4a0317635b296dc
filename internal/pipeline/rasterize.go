package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/folio/pkg/tool"
)

var pdfMagic = []byte("%PDF-")

// Rasterize renders every page of a paginated document to one PNG per page,
// in page order. Non-PDF documents are converted to PDF first.
type Rasterize struct{}

func (Rasterize) Name() string { return StageRasterize }

func (Rasterize) Run(ctx context.Context, at *Attempt, in Payload) (Payload, error) {
	if len(in.Inputs) != 1 {
		return Payload{}, fmt.Errorf("%w: expected one document, got %d", ErrInvalidInput, len(in.Inputs))
	}

	doc := in.Inputs[0]
	isPDF, err := sniffPDF(doc)
	if err != nil {
		return Payload{}, err
	}
	if !isPDF {
		at.Progress(0, "Converting document")
		if doc, err = convertToPDF(ctx, at, doc); err != nil {
			return Payload{}, err
		}
	}

	pages, err := pageCount(doc)
	if err != nil {
		return Payload{}, err
	}

	images := make([]Image, 0, pages)
	for n := 1; n <= pages; n++ {
		res, err := at.Tools.Invoke(ctx, rasterSpec(at.Config, n), []string{doc}, at.Timeout)
		if err != nil {
			return Payload{}, fmt.Errorf("page %d: %w", n, err)
		}

		img, err := probe(res.Outputs[0])
		if err != nil {
			return Payload{}, fmt.Errorf("%w: page %d: %v", ErrIncompleteOutput, n, err)
		}
		images = append(images, img)

		at.Progress(float64(n)/float64(pages), fmt.Sprintf("Converting page %d of %d", n, pages))
	}

	out := in
	out.Images = images
	return out, nil
}

func rasterSpec(cfg *Config, page int) tool.CommandSpec {
	p := strconv.Itoa(page)
	return tool.CommandSpec{
		Name:    "rasterize",
		Program: cfg.Tools.Rasterizer,
		Args: []string{
			"-f", p, "-l", p,
			"-singlefile", "-png",
			"-r", strconv.Itoa(cfg.DPI),
			"{input}", "{workdir}/page",
		},
		Outputs: []string{"page.png"},
		Env:     []string{"PATH=" + os.Getenv("PATH")},
	}
}

func convertToPDF(ctx context.Context, at *Attempt, doc string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(doc), filepath.Ext(doc))
	spec := tool.CommandSpec{
		Name:    "convert",
		Program: at.Config.Tools.Converter,
		Args:    []string{"--headless", "--convert-to", "pdf", "--outdir", "{workdir}", "{input}"},
		Outputs: []string{stem + ".pdf"},
		Env:     []string{"PATH=" + os.Getenv("PATH")},
	}

	res, err := at.Tools.Invoke(ctx, spec, []string{doc}, at.Config.ConvertTimeout())
	if err != nil {
		return "", err
	}
	return res.Outputs[0], nil
}

func sniffPDF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if n == 0 {
		return false, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return bytes.Equal(head[:n], pdfMagic), nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: unreadable document: %v", ErrInvalidInput, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: document has no pages", ErrInvalidInput)
	}
	return n, nil
}
