package h5p

import "errors"

var (
	// ErrManifest indicates a manifest that cannot be built or is internally inconsistent.
	ErrManifest = errors.New("manifest error")
	// ErrPackaging indicates the archive could not be written faithfully,
	// such as an asset that vanished between manifest construction and packaging.
	ErrPackaging = errors.New("packaging error")
)

func errIsDomain(err error) bool {
	return errors.Is(err, ErrManifest) || errors.Is(err, ErrPackaging)
}
