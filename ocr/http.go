package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"idp.evalgo.org/common"
)

// HTTPBackend calls an HTTP OCR service, one request per image, with
// bounded parallelism via a simple channel token bucket — grounded on
// the teacher's http.Client-with-timeout + NewRequestWithContext
// pattern.
type HTTPBackend struct {
	Endpoint string
	Client   *http.Client
	tokens   chan struct{}
}

// NewHTTPBackend builds an HTTPBackend against endpoint, allowing up to
// maxParallel concurrent in-flight requests (default 4 when <= 0).
func NewHTTPBackend(endpoint string, maxParallel int, timeout time.Duration) *HTTPBackend {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &HTTPBackend{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
		tokens:   make(chan struct{}, maxParallel),
	}
}

type httpPageResponse struct {
	Text  string    `json:"text"`
	Boxes []TextBox `json:"boxes"`
}

func (b *HTTPBackend) Recognize(ctx context.Context, imagePaths []string) (*Result, error) {
	pages := make([]Page, len(imagePaths))
	errs := make(chan error, len(imagePaths))

	for i, path := range imagePaths {
		i, path := i, path
		b.tokens <- struct{}{}
		go func() {
			defer func() { <-b.tokens }()
			page, err := b.recognizeOne(ctx, i+1, path)
			if err != nil {
				errs <- err
				return
			}
			pages[i] = page
			errs <- nil
		}()
	}

	for range imagePaths {
		if err := <-errs; err != nil {
			return nil, err
		}
	}
	return buildResult(pages), nil
}

func (b *HTTPBackend) recognizeOne(ctx context.Context, pageNumber int, imagePath string) (Page, error) {
	reqBody, err := json.Marshal(map[string]string{"image_path": imagePath})
	if err != nil {
		return Page{}, fmt.Errorf("marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Page{}, common.NetworkError("build OCR request", b.Endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return Page{}, common.NetworkError("call OCR service", b.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, common.NetworkError("call OCR service", b.Endpoint, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed httpPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Page{}, common.ParseError(imagePath, "OCR service JSON response", err)
	}

	return Page{
		Number:     pageNumber,
		Text:       parsed.Text,
		Boxes:      parsed.Boxes,
		Confidence: averageConfidence(parsed.Boxes),
	}, nil
}
