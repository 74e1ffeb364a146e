package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhook_Validate_Generic(t *testing.T) {
	w := &Webhook{ID: "wh1", Type: WebhookGeneric, EndpointURL: "https://example.com/hook"}
	assert.NoError(t, w.Validate())

	w.EndpointURL = ""
	assert.Error(t, w.Validate())
}

func TestWebhook_Validate_ERPSession(t *testing.T) {
	w := &Webhook{ID: "wh2", Type: WebhookERPSession, KingdeeConfig: json.RawMessage(`{"db_id":"1"}`)}
	assert.NoError(t, w.Validate())

	w.EndpointURL = "https://should-not-be-set.example.com"
	assert.Error(t, w.Validate())

	w.EndpointURL = ""
	w.KingdeeConfig = nil
	assert.Error(t, w.Validate())
}

func TestWebhook_Validate_UnknownType(t *testing.T) {
	w := &Webhook{ID: "wh3", Type: "bogus"}
	assert.Error(t, w.Validate())
}

func TestPushLog_Success(t *testing.T) {
	assert.True(t, (&PushLog{HTTPStatus: 200}).Success())
	assert.True(t, (&PushLog{HTTPStatus: 299}).Success())
	assert.False(t, (&PushLog{HTTPStatus: 300}).Success())
	assert.False(t, (&PushLog{HTTPStatus: 404}).Success())
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(0))
	assert.True(t, RetryableStatus(500))
	assert.True(t, RetryableStatus(429))
	assert.False(t, RetryableStatus(400))
	assert.False(t, RetryableStatus(404))
	assert.False(t, RetryableStatus(200))
}
