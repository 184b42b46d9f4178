// Package pdf converts self-contained certificate markup into paginated PDF documents.
package pdf

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the document engine cannot currently render. Callers treat it
// as a recoverable condition.
var ErrUnavailable = errors.New("pdf: engine unavailable")

// Engine renders a complete HTML document to PDF bytes.
type Engine interface {
	Render(ctx context.Context, markup []byte) ([]byte, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, markup []byte) ([]byte, error)

// Render calls f.
func (f EngineFunc) Render(ctx context.Context, markup []byte) ([]byte, error) {
	return f(ctx, markup)
}

// PaperSize is a page size in inches.
type PaperSize struct {
	Width  float64
	Height float64
}

var (
	PaperA4     = PaperSize{Width: 8.27, Height: 11.69}
	PaperLetter = PaperSize{Width: 8.5, Height: 11}
)

// PaperSizeFor maps a configured page size name to its dimensions, defaulting to A4.
func PaperSizeFor(name string) PaperSize {
	if name == "Letter" {
		return PaperLetter
	}
	return PaperA4
}
