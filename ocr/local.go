package ocr

import (
	"context"
	"sync"
)

// Recognizer is the local detector/recognizer call LocalBackend wraps.
// It is injected so tests and alternate native bindings can substitute
// their own implementation without LocalBackend caring how recognition
// actually happens.
type Recognizer func(ctx context.Context, imagePaths []string) ([]Page, error)

// LocalBackend wraps a local CNN-style detector/recognizer process. The
// process is not thread-safe, so calls are serialized through a mutex —
// the one piece of backend-local shared state the spec calls out.
type LocalBackend struct {
	mu         sync.Mutex
	recognizer Recognizer
}

// NewLocalBackend builds a LocalBackend around recognizer.
func NewLocalBackend(recognizer Recognizer) *LocalBackend {
	return &LocalBackend{recognizer: recognizer}
}

func (b *LocalBackend) Recognize(ctx context.Context, imagePaths []string) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages, err := b.recognizer(ctx, imagePaths)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Confidence = averageConfidence(pages[i].Boxes)
	}
	return buildResult(pages), nil
}
