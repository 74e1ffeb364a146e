package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"idp.evalgo.org/common"
	"idp.evalgo.org/domain"
	"idp.evalgo.org/security"
)

// validationKeywords is the heuristic keyword set used to classify a
// Kingdee save-endpoint error as a validation failure eligible for
// smart-mode degrade-to-draft, versus a hard failure that must not be
// downgraded.
var validationKeywords = []string{
	"required", "validate", "validation", "missing field",
	"必填", "不能为空", "校验", "验证",
}

// KingdeeResult is the outcome of one ERP-session push attempt.
type KingdeeResult struct {
	StatusCode   int
	ResponseBody string
	Degraded     bool // true when smart mode fell back from save to draft
	UsedDraft    bool
}

// ERPSessionTarget speaks the Kingdee K3 Cloud two-phase protocol: log
// in once to capture session cookies, then POST the job's pre-shaped
// save payload to the strict-save or draft endpoint per SaveMode.
type ERPSessionTarget struct {
	Client        *http.Client
	EncryptionKey string
}

// NewERPSessionTarget builds an ERPSessionTarget whose http.Client
// carries a cookie jar so the session established by login persists
// across the save/draft call.
func NewERPSessionTarget(encryptionKey string) (*ERPSessionTarget, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, common.FailedTo("create cookie jar", err)
	}
	return &ERPSessionTarget{
		Client:        &http.Client{Timeout: requestTimeout, Jar: jar},
		EncryptionKey: encryptionKey,
	}, nil
}

// Login authenticates to the ERP by POSTing
// [db_id, user, password, lcid] and relies on the client's cookie jar to
// capture the resulting session cookies.
func (t *ERPSessionTarget) Login(ctx context.Context, cfg *domain.KingdeeConfig) error {
	password, err := decryptIfNeeded(t.EncryptionKey, cfg.Password)
	if err != nil {
		return err
	}

	lcid := cfg.LCID
	if lcid == 0 {
		lcid = 2052
	}
	params := []interface{}{cfg.DBID, cfg.Username, password, lcid}
	body, err := json.Marshal(map[string]interface{}{"parameters": mustMarshalString(params)})
	if err != nil {
		return common.FailedTo("encode kingdee login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.LoginURL, bytes.NewReader(body))
	if err != nil {
		return common.NetworkError("build kingdee login request", cfg.LoginURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return common.NetworkError("call kingdee login endpoint", cfg.LoginURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return common.AuthenticationError(fmt.Sprintf("kingdee login failed with status %d", resp.StatusCode))
	}
	return nil
}

func mustMarshalString(v interface{}) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func decryptIfNeeded(key, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	plain, err := security.Decrypt(key, []byte(value))
	if err != nil {
		// Password may already be plaintext (e.g. test fixtures); fall
		// back rather than fail the whole push on a decrypt mismatch.
		return value, nil
	}
	return string(plain), nil
}

func (t *ERPSessionTarget) post(ctx context.Context, url string, payload map[string]interface{}) (*KingdeeResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.FailedTo("encode kingdee save payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, common.NetworkError("build kingdee save request", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, common.NetworkError("call kingdee save endpoint", url, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	return &KingdeeResult{StatusCode: resp.StatusCode, ResponseBody: buf.String()}, nil
}

func isValidationError(responseBody string) bool {
	lower := strings.ToLower(responseBody)
	for _, kw := range validationKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// SmartSave applies the webhook's save_mode: draft_only and save_only go
// straight to their endpoint; smart tries save first and falls back to
// draft, marking the result degraded, only when the save failure looks
// like a validation error per the keyword heuristic. Non-validation
// failures are returned as-is with no downgrade.
func (t *ERPSessionTarget) SmartSave(ctx context.Context, cfg *domain.KingdeeConfig, payload map[string]interface{}) (*KingdeeResult, error) {
	switch cfg.SaveMode {
	case domain.SaveDraftOnly:
		result, err := t.post(ctx, cfg.DraftURL, payload)
		if result != nil {
			result.UsedDraft = true
		}
		return result, err
	case domain.SaveOnly:
		return t.post(ctx, cfg.SaveURL, payload)
	default: // smart
		saveResult, err := t.post(ctx, cfg.SaveURL, payload)
		if err != nil {
			return nil, err
		}
		if saveResult.StatusCode >= 200 && saveResult.StatusCode < 300 {
			return saveResult, nil
		}
		if !isValidationError(saveResult.ResponseBody) {
			return saveResult, nil
		}

		draftResult, err := t.post(ctx, cfg.DraftURL, payload)
		if err != nil {
			return nil, err
		}
		draftResult.Degraded = true
		draftResult.UsedDraft = true
		return draftResult, nil
	}
}
