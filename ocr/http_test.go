package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"remote text","boxes":[{"Text":"remote","Confidence":0.8}]}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, 2, 5*time.Second)
	result, err := backend.Recognize(context.Background(), []string{"a.png", "b.png"})
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)
	assert.Equal(t, "remote text", result.Pages[0].Text)
}

func TestHTTPBackend_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, 1, 5*time.Second)
	_, err := backend.Recognize(context.Background(), []string{"a.png"})
	assert.Error(t, err)
}
