package h5p

import (
	"fmt"

	"github.com/google/uuid"
)

// subContentNamespace seeds deterministic sub-content identifiers so that
// identical inputs yield identical content.json bytes.
var subContentNamespace = uuid.MustParse("6f1c2a3e-8d4b-5e7f-9a0b-1c2d3e4f5a6b")

type packageJSON struct {
	Title                 string    `json:"title"`
	Language              string    `json:"language"`
	MainLibrary           string    `json:"mainLibrary"`
	EmbedTypes            []string  `json:"embedTypes"`
	License               string    `json:"license"`
	DefaultLanguage       string    `json:"defaultLanguage"`
	PreloadedDependencies []Library `json:"preloadedDependencies"`
}

func newPackageJSON(m *Manifest) packageJSON {
	return packageJSON{
		Title:                 m.Title,
		Language:              "und",
		MainLibrary:           m.ContentType.Main.MachineName,
		EmbedTypes:            []string{"iframe"},
		License:               "U",
		DefaultLanguage:       "en",
		PreloadedDependencies: m.Dependencies,
	}
}

type fileRef struct {
	Path      string    `json:"path"`
	MIME      string    `json:"mime"`
	Copyright copyright `json:"copyright"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}

type copyright struct {
	License string `json:"license"`
}

type metadata struct {
	ContentType string `json:"contentType"`
	License     string `json:"license"`
	Title       string `json:"title"`
}

type imageParams struct {
	ContentName string  `json:"contentName"`
	File        fileRef `json:"file"`
	Alt         string  `json:"alt"`
	Decorative  bool    `json:"decorative"`
}

type library struct {
	Library      string      `json:"library"`
	Params       imageParams `json:"params"`
	SubContentID string      `json:"subContentId"`
	Metadata     metadata    `json:"metadata"`
}

func imageLibrary(slide, element int, e Element) library {
	return library{
		Library: e.Library.String(),
		Params: imageParams{
			ContentName: "Image",
			File: fileRef{
				Path:      e.Asset.Path,
				MIME:      e.Asset.MIME,
				Copyright: copyright{License: "U"},
				Width:     e.Asset.Width,
				Height:    e.Asset.Height,
			},
			Alt: e.Alt,
		},
		SubContentID: subContentID(slide, element, e.Asset.Path),
		Metadata: metadata{
			ContentType: "Image",
			License:     "U",
			Title:       e.Alt,
		},
	}
}

func subContentID(slide, element int, assetPath string) string {
	key := fmt.Sprintf("%d/%d/%s", slide, element, assetPath)
	return uuid.NewSHA1(subContentNamespace, []byte(key)).String()
}

// course presentation

type cpElement struct {
	X                     float64 `json:"x"`
	Y                     float64 `json:"y"`
	Width                 float64 `json:"width"`
	Height                float64 `json:"height"`
	Action                library `json:"action"`
	AlwaysDisplayComments bool    `json:"alwaysDisplayComments"`
	BackgroundOpacity     int     `json:"backgroundOpacity"`
	DisplayAsButton       bool    `json:"displayAsButton"`
	ButtonSize            string  `json:"buttonSize"`
	GoToSlideType         string  `json:"goToSlideType"`
	Invisible             bool    `json:"invisible"`
}

type cpSlide struct {
	Elements                []cpElement `json:"elements"`
	SlideBackgroundSelector struct{}    `json:"slideBackgroundSelector"`
	Keywords                []string    `json:"keywords"`
}

type cpPresentation struct {
	Slides                   []cpSlide `json:"slides"`
	KeywordListEnabled       bool      `json:"keywordListEnabled"`
	GlobalBackgroundSelector struct{}  `json:"globalBackgroundSelector"`
	KeywordListAlwaysShow    bool      `json:"keywordListAlwaysShow"`
	KeywordListAutoHide      bool      `json:"keywordListAutoHide"`
	KeywordListOpacity       int       `json:"keywordListOpacity"`
}

type cpOverride struct {
	ActiveSurface              bool `json:"activeSurface"`
	HideSummarySlide           bool `json:"hideSummarySlide"`
	SummarySlideSolutionButton bool `json:"summarySlideSolutionButton"`
	SummarySlideRetryButton    bool `json:"summarySlideRetryButton"`
	EnablePrintButton          bool `json:"enablePrintButton"`
}

type cpContent struct {
	Presentation cpPresentation `json:"presentation"`
	Override     cpOverride     `json:"override"`
}

func coursePresentationParams(m *Manifest) any {
	slides := make([]cpSlide, len(m.Slides))
	for i, s := range m.Slides {
		elements := make([]cpElement, len(s.Elements))
		for j, e := range s.Elements {
			elements[j] = cpElement{
				X:             e.X,
				Y:             e.Y,
				Width:         e.Width,
				Height:        e.Height,
				Action:        imageLibrary(i, j, e),
				ButtonSize:    "big",
				GoToSlideType: "specified",
			}
		}
		slides[i] = cpSlide{Elements: elements, Keywords: []string{}}
	}

	return cpContent{
		Presentation: cpPresentation{
			Slides:             slides,
			KeywordListEnabled: true,
			KeywordListOpacity: 90,
		},
		Override: cpOverride{
			HideSummarySlide:           true,
			SummarySlideSolutionButton: true,
			SummarySlideRetryButton:    true,
		},
	}
}

// image slider

type isSlide struct {
	Image library `json:"image"`
}

type aspectRatio struct {
	AspectWidth  int `json:"aspectWidth"`
	AspectHeight int `json:"aspectHeight"`
}

type isContent struct {
	ImageSlides     []isSlide   `json:"imageSlides"`
	AspectRatioMode string      `json:"aspectRatioMode"`
	AspectRatio     aspectRatio `json:"aspectRatio"`
}

func imageSliderParams(m *Manifest) any {
	slides := make([]isSlide, 0, len(m.Slides))
	for i, s := range m.Slides {
		for j, e := range s.Elements {
			slides = append(slides, isSlide{Image: imageLibrary(i, j, e)})
		}
	}

	return isContent{
		ImageSlides:     slides,
		AspectRatioMode: "auto",
		AspectRatio:     aspectRatio{AspectWidth: 16, AspectHeight: 9},
	}
}
