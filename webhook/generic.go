// Package webhook implements the two push-target protocols: a generic
// HTTP target with a templated JSON body, HMAC signing and pluggable
// auth, and an ERP-session target speaking the Kingdee K3 Cloud
// login/save/draft protocol.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/security"
)

const requestTimeout = 30 * time.Second

// RenderVars carries the values substituted into a generic webhook's
// request template.
type RenderVars struct {
	TaskID     string
	ResultJSON interface{}
	FileURL    string
	MetaInfo   interface{}
}

// RenderTemplate substitutes {{task_id}}, {{result_json}}, {{file_url}}
// and {{meta_info}} into template, replacing each placeholder together
// with its surrounding quotes so object/array substitutions splice in as
// real JSON values rather than escaped strings.
func RenderTemplate(template json.RawMessage, vars RenderVars) (string, error) {
	values := map[string]interface{}{
		"task_id":     vars.TaskID,
		"result_json": vars.ResultJSON,
		"file_url":    vars.FileURL,
		"meta_info":   vars.MetaInfo,
	}

	rendered := string(template)
	for key, value := range values {
		placeholder := fmt.Sprintf(`"{{%s}}"`, key)
		if !strings.Contains(rendered, placeholder) {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", common.FailedTo("encode template variable "+key, err)
		}
		rendered = strings.ReplaceAll(rendered, placeholder, string(encoded))
	}
	return rendered, nil
}

// BuildHeaders assembles the request headers for a generic webhook call:
// content-type, user-agent, a unix-seconds timestamp, an HMAC-SHA256
// body signature when a secret is bound, and whichever auth scheme the
// webhook declares.
func BuildHeaders(w *domain.Webhook, body string, encryptionKey string) (http.Header, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "idp-core/1.0")
	headers.Set("X-IDP-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	if len(w.EncryptedSecret) > 0 {
		secret, err := security.Decrypt(encryptionKey, w.EncryptedSecret)
		if err != nil {
			return nil, common.FailedTo("decrypt webhook secret", err)
		}
		headers.Set("X-IDP-Signature", signBody(body, string(secret)))
	}

	var auth domain.AuthConfig
	if len(w.AuthConfig) > 0 {
		if err := json.Unmarshal(w.AuthConfig, &auth); err != nil {
			return nil, common.ParseError("webhook auth_config", "json", err)
		}
	}

	switch w.AuthType {
	case domain.AuthBasic:
		creds := auth.BasicUser + ":" + auth.BasicPassword
		headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case domain.AuthBearer:
		headers.Set("Authorization", "Bearer "+auth.BearerToken)
	case domain.AuthAPIKey:
		name := auth.APIKeyHeader
		if name == "" {
			name = "X-API-Key"
		}
		headers.Set(name, auth.APIKeyValue)
	}

	return headers, nil
}

func signBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenericResult is the outcome of one generic webhook dispatch attempt.
type GenericResult struct {
	StatusCode      int
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
	ResponseBody    string
	Duration        time.Duration
}

// GenericTarget dispatches a job payload to a webhook's endpoint URL.
type GenericTarget struct {
	Client        *http.Client
	EncryptionKey string
}

// NewGenericTarget builds a GenericTarget with the documented 30s
// request timeout.
func NewGenericTarget(encryptionKey string) *GenericTarget {
	return &GenericTarget{Client: &http.Client{Timeout: requestTimeout}, EncryptionKey: encryptionKey}
}

// Dispatch renders the webhook's request template, signs and POSTs it,
// and returns the outcome regardless of success so the caller can record
// a PushLog either way.
func (t *GenericTarget) Dispatch(ctx context.Context, w *domain.Webhook, vars RenderVars) (*GenericResult, error) {
	body, err := RenderTemplate(w.RequestTemplate, vars)
	if err != nil {
		return nil, err
	}

	headers, err := BuildHeaders(w, body, t.EncryptionKey)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.EndpointURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, common.NetworkError("build webhook request", w.EndpointURL, err)
	}
	req.Header = headers

	start := time.Now()
	resp, err := t.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return &GenericResult{Duration: duration, RequestHeaders: flattenHeader(headers)},
			common.NetworkError("call webhook endpoint", w.EndpointURL, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return &GenericResult{
		StatusCode:      resp.StatusCode,
		RequestHeaders:  flattenHeader(headers),
		ResponseHeaders: flattenHeader(resp.Header),
		ResponseBody:    string(respBody),
		Duration:        duration,
	}, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
