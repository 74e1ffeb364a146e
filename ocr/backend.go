// Package ocr abstracts over the three supported OCR backends (a local
// detector/recognizer process, a CLI wrapper, and an HTTP service),
// producing a uniform per-page result regardless of which one ran.
package ocr

import (
	"context"
	"strings"
)

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	X, Y, Width, Height int
}

// TextBox is one recognized text region on a page.
type TextBox struct {
	Text       string
	Confidence float64 // 0..1
	Box        BoundingBox
}

// Page is one page's OCR output.
type Page struct {
	Number     int
	Text       string
	Boxes      []TextBox
	Confidence float64 // average of Boxes' confidences, 0..1
}

// Result is a backend's uniform output: a sequence of pages plus the
// merged full text (pages joined by MergeSeparator).
type Result struct {
	Pages    []Page
	FullText string
}

// Backend recognizes text from a set of page images.
type Backend interface {
	Recognize(ctx context.Context, imagePaths []string) (*Result, error)
}

// MergeSeparator joins page texts into Result.FullText.
const MergeSeparator = "\n"

func averageConfidence(boxes []TextBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

func buildResult(pages []Page) *Result {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return &Result{Pages: pages, FullText: strings.Join(texts, MergeSeparator)}
}
