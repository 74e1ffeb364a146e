package ocr

import (
	"context"

	"idp.evalgo.org/common"
)

// Dispatcher tries a configured primary backend and, on an empty result
// or error, falls back to a configured secondary backend.
type Dispatcher struct {
	Primary  Backend
	Fallback Backend // nil when no fallback is configured
}

// NewDispatcher builds a Dispatcher. fallback may be nil.
func NewDispatcher(primary, fallback Backend) *Dispatcher {
	return &Dispatcher{Primary: primary, Fallback: fallback}
}

// Recognize runs the primary backend, retrying with Fallback when the
// primary errors or returns no pages.
func (d *Dispatcher) Recognize(ctx context.Context, imagePaths []string) (*Result, error) {
	result, err := d.Primary.Recognize(ctx, imagePaths)
	if err == nil && len(result.Pages) > 0 {
		return result, nil
	}

	if d.Fallback == nil {
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	fallbackResult, fallbackErr := d.Fallback.Recognize(ctx, imagePaths)
	if fallbackErr != nil {
		return nil, common.FailedToWithDetails("recognize document", "ocr", "",
			common.Chain(err, fallbackErr))
	}
	return fallbackResult, nil
}
