package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"idp.evalgo.org/domain"
)

func TestRenderTemplate_SubstitutesScalarsAndObjects(t *testing.T) {
	template := json.RawMessage(`{"id":"{{task_id}}","data":"{{result_json}}","url":"{{file_url}}"}`)
	rendered, err := RenderTemplate(template, RenderVars{
		TaskID:     "job-1",
		ResultJSON: map[string]interface{}{"amount": "42"},
		FileURL:    "https://example.com/file",
	})
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rendered), &parsed))
	assert.Equal(t, "job-1", parsed["id"])
	assert.Equal(t, "https://example.com/file", parsed["url"])
	data, ok := parsed["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "42", data["amount"])
}

func TestBuildHeaders_BearerAuth(t *testing.T) {
	w := &domain.Webhook{
		AuthType:   domain.AuthBearer,
		AuthConfig: mustJSON(domain.AuthConfig{BearerToken: "tok-123"}),
	}
	headers, err := BuildHeaders(w, "{}", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.NotEmpty(t, headers.Get("X-IDP-Timestamp"))
}

func TestBuildHeaders_BasicAuth(t *testing.T) {
	w := &domain.Webhook{
		AuthType:   domain.AuthBasic,
		AuthConfig: mustJSON(domain.AuthConfig{BasicUser: "alice", BasicPassword: "secret"}),
	}
	headers, err := BuildHeaders(w, "{}", "")
	require.NoError(t, err)
	assert.True(t, len(headers.Get("Authorization")) > len("Basic "))
}

func TestGenericTarget_Dispatch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	webhook := &domain.Webhook{
		ID:              "wh-1",
		Type:            domain.WebhookGeneric,
		EndpointURL:     server.URL,
		AuthType:        domain.AuthNone,
		RequestTemplate: json.RawMessage(`{"id":"{{task_id}}"}`),
	}

	target := NewGenericTarget("")
	result, err := target.Dispatch(context.Background(), webhook, RenderVars{TaskID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func mustJSON(v interface{}) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
