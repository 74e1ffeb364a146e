package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WebhookType selects which dispatcher protocol a webhook uses.
type WebhookType string

const (
	WebhookGeneric    WebhookType = "generic"
	WebhookERPSession WebhookType = "erp-session"
)

// AuthType is the auth mode a generic webhook applies to its requests.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
)

// SaveMode controls how an erp-session webhook resolves a validation
// failure on its primary save endpoint.
type SaveMode string

const (
	SaveSmart     SaveMode = "smart"
	SaveOnly      SaveMode = "save_only"
	SaveDraftOnly SaveMode = "draft_only"
)

// AuthConfig holds the credentials for a generic webhook's auth mode.
// Webhook.AuthType selects which fields are read: BasicUser and
// BasicPassword, BearerToken, or APIKeyHeader and APIKeyValue.
type AuthConfig struct {
	BasicUser     string `json:"basic_user,omitempty"`
	BasicPassword string `json:"basic_password,omitempty"`
	BearerToken   string `json:"bearer_token,omitempty"`
	APIKeyHeader  string `json:"api_key_header,omitempty"`
	APIKeyValue   string `json:"api_key_value,omitempty"`
}

// KingdeeConfig holds the ERP-session protocol's login and save-endpoint
// parameters, grounded 1:1 on the Kingdee K3 Cloud integration.
type KingdeeConfig struct {
	LoginURL   string   `json:"login_url"`
	SaveURL    string   `json:"save_url"`
	DraftURL   string   `json:"draft_url"`
	DBID       string   `json:"db_id"`
	Username   string   `json:"username"`
	Password   string   `json:"password"` // encrypted at rest via security.Encrypt
	LCID       int      `json:"lcid"`     // locale id, 2052 for zh-CN
	SaveMode   SaveMode `json:"save_mode"`
}

// Webhook is a push target bound to one or more rules. A generic webhook
// carries an endpoint URL and request template; an erp-session webhook
// has no endpoint and carries its own KingdeeConfig (login, save and
// draft URLs plus credentials) instead.
type Webhook struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	Name            string          `gorm:"size:100;not null" json:"name"`
	Type            WebhookType     `gorm:"column:webhook_type;size:20;default:generic" json:"type"`
	EndpointURL     string          `gorm:"column:endpoint_url;size:500" json:"endpoint_url,omitempty"`
	AuthType        AuthType        `gorm:"column:auth_type;size:20;default:none" json:"auth_type"`
	AuthConfig      json.RawMessage `gorm:"column:auth_config;type:jsonb" json:"auth_config,omitempty"`
	EncryptedSecret []byte          `gorm:"column:secret_key;type:bytea" json:"-"`
	RequestTemplate json.RawMessage `gorm:"column:request_template;type:jsonb" json:"request_template,omitempty"`
	KingdeeConfig   json.RawMessage `gorm:"column:kingdee_config;type:jsonb" json:"kingdee_config,omitempty"`
	IsActive        bool            `gorm:"column:is_active;index;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Webhook) TableName() string { return "webhooks" }

// Validate enforces the type/endpoint invariant: a generic webhook needs
// a URL, an erp-session webhook must not have one.
func (w *Webhook) Validate() error {
	switch w.Type {
	case WebhookGeneric:
		if w.EndpointURL == "" {
			return fmt.Errorf("webhook %s: generic webhook requires an endpoint URL", w.ID)
		}
	case WebhookERPSession:
		if w.EndpointURL != "" {
			return fmt.Errorf("webhook %s: erp-session webhook must not set an endpoint URL", w.ID)
		}
		if len(w.KingdeeConfig) == 0 {
			return fmt.Errorf("webhook %s: erp-session webhook requires kingdee_config", w.ID)
		}
	default:
		return fmt.Errorf("webhook %s: unknown webhook type %q", w.ID, w.Type)
	}
	return nil
}

// PushLog is a per-attempt record of one (job, webhook) dispatch.
type PushLog struct {
	ID               int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID            string            `gorm:"column:task_id;size:64;index;not null" json:"job_id"`
	WebhookID        string            `gorm:"column:webhook_id;size:64;index;not null" json:"webhook_id"`
	HTTPStatus       int               `gorm:"column:http_status" json:"http_status,omitempty"`
	RequestHeaders   map[string]string `gorm:"column:request_headers;type:jsonb;serializer:json" json:"request_headers,omitempty"`
	RequestBody      string            `gorm:"column:request_body;type:text" json:"request_body,omitempty"`
	ResponseHeaders  map[string]string `gorm:"column:response_headers;type:jsonb;serializer:json" json:"response_headers,omitempty"`
	ResponseBody     string            `gorm:"column:response_body;type:text" json:"response_body,omitempty"`
	DurationMS       int               `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	RetryCount       int               `gorm:"column:retry_count;default:0" json:"retry_count"`
	ErrorMessage     string            `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time         `gorm:"index;autoCreateTime" json:"created_at"`
}

func (PushLog) TableName() string { return "push_logs" }

// Success reports whether the attempt's status falls in [200, 300).
func (p *PushLog) Success() bool {
	return p.HTTPStatus >= 200 && p.HTTPStatus < 300
}

// RetryableStatus reports whether the dispatcher should schedule a
// delayed republish for this status: skip retry for any 4xx other than
// 429.
func RetryableStatus(status int) bool {
	if status == 0 {
		return true // transport-level failure, no status received
	}
	if status >= 400 && status < 500 && status != 429 {
		return false
	}
	return status < 200 || status >= 300
}
