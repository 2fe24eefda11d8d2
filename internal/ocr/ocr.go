// Package ocr extracts text and a confidence from scanned provider documents.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/config"
)

// UnavailableText replaces the text of a document that could not be read.
const UnavailableText = "OCR Unavailable"

// DefaultNeutralConfidence is reported for unreadable documents so a missing
// OCR engine does not drag quality scores down.
const DefaultNeutralConfidence = 0.7

// ErrDisabled is returned by the extractor used when OCR is switched off.
var ErrDisabled = eris.New("ocr: disabled")

// Result is the outcome of reading one document.
type Result struct {
	Text       string
	Confidence float64
}

// Extractor reads the image at path.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

// NewExtractor creates an Extractor based on config. The returned extractor
// never fails: errors become UnavailableText at the neutral confidence.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	var inner Extractor
	switch cfg.Provider {
	case "tesseract", "":
		inner = NewTesseract(cfg.Binary, cfg.Language)
	case "none":
		inner = disabled{}
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
	return NewFailSoft(inner, cfg.NeutralConfidence), nil
}

type disabled struct{}

func (disabled) Extract(context.Context, string) (Result, error) {
	return Result{}, ErrDisabled
}

// FailSoft wraps an Extractor so extraction failures yield a placeholder
// result instead of an error.
type FailSoft struct {
	inner   Extractor
	neutral float64
}

// NewFailSoft wraps inner. A neutral confidence outside (0, 1] falls back to
// DefaultNeutralConfidence.
func NewFailSoft(inner Extractor, neutral float64) *FailSoft {
	if neutral <= 0 || neutral > 1 {
		neutral = DefaultNeutralConfidence
	}
	return &FailSoft{inner: inner, neutral: neutral}
}

// Extract implements Extractor and always returns a nil error.
func (f *FailSoft) Extract(ctx context.Context, path string) (Result, error) {
	res, err := f.inner.Extract(ctx, path)
	if err != nil {
		if !eris.Is(err, ErrDisabled) {
			zap.L().Warn("ocr: extraction failed", zap.String("path", path), zap.Error(err))
		}
		return Result{Text: UnavailableText, Confidence: f.neutral}, nil
	}
	return res, nil
}
