package ocr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	result *Result
	err    error
}

func (f *fakeBackend) Recognize(ctx context.Context, imagePaths []string) (*Result, error) {
	return f.result, f.err
}

func TestDispatcher_PrimarySucceeds(t *testing.T) {
	primary := &fakeBackend{result: buildResult([]Page{{Number: 1, Text: "hi"}})}
	fallback := &fakeBackend{err: fmt.Errorf("should not be called")}

	d := NewDispatcher(primary, fallback)
	result, err := d.Recognize(context.Background(), []string{"a.png"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.FullText)
}

func TestDispatcher_FallsBackOnError(t *testing.T) {
	primary := &fakeBackend{err: fmt.Errorf("primary down")}
	fallback := &fakeBackend{result: buildResult([]Page{{Number: 1, Text: "fallback"}})}

	d := NewDispatcher(primary, fallback)
	result, err := d.Recognize(context.Background(), []string{"a.png"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.FullText)
}

func TestDispatcher_FallsBackOnEmptyResult(t *testing.T) {
	primary := &fakeBackend{result: &Result{}}
	fallback := &fakeBackend{result: buildResult([]Page{{Number: 1, Text: "fallback"}})}

	d := NewDispatcher(primary, fallback)
	result, err := d.Recognize(context.Background(), []string{"a.png"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.FullText)
}

func TestDispatcher_NoFallbackConfigured(t *testing.T) {
	primary := &fakeBackend{err: fmt.Errorf("primary down")}
	d := NewDispatcher(primary, nil)

	_, err := d.Recognize(context.Background(), []string{"a.png"})
	assert.Error(t, err)
}

func TestDispatcher_BothFail(t *testing.T) {
	primary := &fakeBackend{err: fmt.Errorf("primary down")}
	fallback := &fakeBackend{err: fmt.Errorf("fallback down")}

	d := NewDispatcher(primary, fallback)
	_, err := d.Recognize(context.Background(), []string{"a.png"})
	assert.Error(t, err)
}
