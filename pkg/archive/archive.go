// Package archive writes zip containers whose bytes depend only on the
// entries written and their order.
package archive

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Level is the deflate level applied to every entry.
const Level = 6

// Epoch is stamped on every entry in place of wall-clock time.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Writer appends entries in call order. It never emits directory entries.
type Writer struct {
	zw *zip.Writer
}

func NewWriter(w io.Writer) *Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, Level)
	})
	return &Writer{zw: zw}
}

// Create starts a new entry and returns a writer for its contents.
func (w *Writer) Create(name string) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: Epoch,
	}
	hdr.SetMode(0o644)

	ew, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", name, err)
	}
	return ew, nil
}

// WriteBytes writes data as the entry name.
func (w *Writer) WriteBytes(name string, data []byte) error {
	ew, err := w.Create(name)
	if err != nil {
		return err
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// CopyFile writes the contents of the local file source as the entry name.
func (w *Writer) CopyFile(name, source string) error {
	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer src.Close()

	ew, err := w.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(ew, src); err != nil {
		return fmt.Errorf("copy %s: %w", source, err)
	}
	return nil
}

// Close writes the central directory. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}

// RequireFiles returns an error naming the first path that is missing,
// a directory, or empty.
func RequireFiles(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if info.IsDir() || info.Size() == 0 {
			return fmt.Errorf("%s: not a non-empty file", p)
		}
	}
	return nil
}

// WriteFile creates dest and hands it to write, removing dest if write or
// the final close fails.
func WriteFile(dest string, write func(io.Writer) error) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}
