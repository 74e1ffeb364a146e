package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, failThreshold uint32) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := New(Config{
		BaseURL:              server.URL,
		APIKey:               "test-key",
		Model:                "test-model",
		Timeout:              2 * time.Second,
		BreakerFailThreshold: failThreshold,
		BreakerOpenDuration:  50 * time.Millisecond,
	})
	return client, server
}

func TestClient_Complete_Success(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"total_tokens":12}}`))
	}, 5)
	defer server.Close()

	out, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 12, client.LastTokens)
}

func TestClient_Complete_NonSuccessStatus(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 5)
	defer server.Close()

	_, err := client.Complete(context.Background(), "system", "user")
	assert.Error(t, err)
}

func TestClient_Breaker_OpensAfterConsecutiveFailures(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)
	defer server.Close()

	_, _ = client.Complete(context.Background(), "s", "u")
	_, _ = client.Complete(context.Background(), "s", "u")

	assert.False(t, client.Available())

	_, err := client.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestClient_Breaker_RecoversAfterOpenDuration(t *testing.T) {
	fail := true
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`))
	}, 1)
	defer server.Close()

	_, _ = client.Complete(context.Background(), "s", "u")
	assert.False(t, client.Available())

	time.Sleep(60 * time.Millisecond)
	fail = false

	out, err := client.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.True(t, client.Available())
}
