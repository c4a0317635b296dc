// Package h5p builds interactive-content packages: a manifest describing
// slides and the runtime libraries needed to render them, serialized with
// every referenced asset into a single deterministic archive.
package h5p

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Library identifies a runtime library by machine name and major/minor version.
type Library struct {
	MachineName  string `json:"machineName"`
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
}

// String renders the library in the "Name major.minor" form used by content params.
func (l Library) String() string {
	return fmt.Sprintf("%s %d.%d", l.MachineName, l.MajorVersion, l.MinorVersion)
}

// ParseLibrary parses the "Name major.minor" form.
func ParseLibrary(s string) (Library, error) {
	name, version, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || name == "" {
		return Library{}, fmt.Errorf("invalid library reference: %q", s)
	}

	majorStr, minorStr, ok := strings.Cut(version, ".")
	if !ok {
		return Library{}, fmt.Errorf("invalid library version: %q", s)
	}

	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Library{}, fmt.Errorf("invalid major version in %q: %w", s, err)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Library{}, fmt.Errorf("invalid minor version in %q: %w", s, err)
	}

	return Library{MachineName: name, MajorVersion: major, MinorVersion: minor}, nil
}

// Runtime libraries referenced by the supported content types.
var (
	LibImage              = Library{"H5P.Image", 1, 1}
	LibCoursePresentation = Library{"H5P.CoursePresentation", 1, 25}
	LibImageSlider        = Library{"H5P.ImageSlider", 1, 1}
	LibFontAwesome        = Library{"FontAwesome", 4, 5}
	LibJoubelUI           = Library{"H5P.JoubelUI", 1, 3}
	LibTransition         = Library{"H5P.Transition", 1, 0}
	LibFontIcons          = Library{"H5P.FontIcons", 1, 0}
)

// ContentType is a closed description of one interactive content schema:
// its main library, the fixed dependency set it needs at runtime, and the
// content parameters it renders from a manifest.
type ContentType struct {
	Main         Library
	Dependencies []Library
	params       func(m *Manifest) any
}

// CoursePresentation is the course-presentation variant: slides with
// positioned elements, navigation, and a summary slide.
var CoursePresentation = ContentType{
	Main: LibCoursePresentation,
	Dependencies: []Library{
		LibCoursePresentation,
		LibImage,
		LibFontAwesome,
		LibJoubelUI,
		LibTransition,
		LibFontIcons,
	},
	params: coursePresentationParams,
}

// ImageSlider is the single-presentation variant: one full image per slide.
var ImageSlider = ContentType{
	Main: LibImageSlider,
	Dependencies: []Library{
		LibImageSlider,
		LibImage,
		LibFontAwesome,
		LibTransition,
	},
	params: imageSliderParams,
}

// Resolves reports whether ref is satisfied by the dependency set.
func Resolves(deps []Library, ref Library) bool {
	return slices.Contains(deps, ref)
}
