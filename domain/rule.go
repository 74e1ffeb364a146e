package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleVersionStatus tracks a version's place in the draft/publish/archive
// lifecycle. Exactly one version per rule may be Published at a time.
type RuleVersionStatus string

const (
	RuleDraft     RuleVersionStatus = "draft"
	RulePublished RuleVersionStatus = "published"
	RuleArchived  RuleVersionStatus = "archived"
)

// SchemaNodeKind distinguishes the four node shapes a field schema tree
// can hold.
type SchemaNodeKind string

const (
	SchemaField  SchemaNodeKind = "field"
	SchemaObject SchemaNodeKind = "object"
	SchemaArray  SchemaNodeKind = "array"
	SchemaTable  SchemaNodeKind = "table"
)

// SchemaNode is one node of a rule version's recursive field schema tree.
// Object nodes carry Children; array and table nodes carry a single Item
// describing the element shape.
type SchemaNode struct {
	Kind                SchemaNodeKind         `json:"kind"`
	Type                string                 `json:"type"`
	Label               string                 `json:"label"`
	Required            bool                   `json:"required"`
	ConfidenceThreshold *int                   `json:"confidence_threshold,omitempty"`
	Children            map[string]*SchemaNode `json:"children,omitempty"`
	Item                *SchemaNode            `json:"item,omitempty"`
}

// Threshold returns the node's declared confidence threshold, falling
// back to def when none is set.
func (n *SchemaNode) Threshold(def int) int {
	if n == nil || n.ConfidenceThreshold == nil {
		return def
	}
	return *n.ConfidenceThreshold
}

// Rule has a stable id and points at its currently published version.
type Rule struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Code           string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	DocumentType   string    `gorm:"column:document_type;size:50;index" json:"document_type"`
	CurrentVersion string    `gorm:"column:current_version;size:20" json:"current_version,omitempty"`
	CreatedBy      string    `gorm:"column:created_by;size:64" json:"created_by,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Rule) TableName() string { return "rules" }

// ExtractionStrategyConfig binds one schema field path to an extraction
// strategy and its parameters (regex pattern, anchor text, table
// selector, or LLM hint) — the strategy name decides which sub-fields
// apply.
type ExtractionStrategyConfig struct {
	Strategy string          `json:"strategy"`
	Params   json.RawMessage `json:"params"`
}

// FieldValidationConfig binds one schema field path to its ordered
// cleaning ops and validation predicates.
type FieldValidationConfig struct {
	CleaningOps []json.RawMessage `json:"cleaning_ops,omitempty"`
	Predicates  []json.RawMessage `json:"predicates,omitempty"`
}

// EnhancementConfig controls the optional second-pass LLM call for
// low-confidence fields and the optional vision consistency check.
type EnhancementConfig struct {
	Enabled             bool    `json:"enabled"`
	ConfidenceThreshold int     `json:"confidence_threshold"`
	ConsistencyCheck    bool    `json:"consistency_check"`
	ConsistencyPolicy   string  `json:"consistency_policy,omitempty"` // prefer_llm | prefer_ocr | manual_review
	ConsistencyMinSim   float64 `json:"consistency_min_similarity,omitempty"`
}

// RuleVersionConfig is the full decoded contents of a RuleVersion's
// Config column: the schema tree plus extraction map, validation map and
// enhancement config.
type RuleVersionConfig struct {
	Schema     *SchemaNode                         `json:"schema"`
	Extraction map[string]ExtractionStrategyConfig  `json:"extraction"`
	Validation map[string]FieldValidationConfig     `json:"validation"`
	Enhance    EnhancementConfig                    `json:"enhancement"`
}

// RuleVersion is an immutable extraction configuration, labeled
// V<major>.<minor>. The full configuration lives in Config as jsonb;
// Decode/Encode convert to and from RuleVersionConfig.
type RuleVersion struct {
	ID          uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	RuleID      string            `gorm:"column:rule_id;size:64;not null;index" json:"rule_id"`
	Label       string            `gorm:"column:version;size:20;not null" json:"label"`
	Status      RuleVersionStatus `gorm:"size:20;index;not null;default:draft" json:"status"`
	Config      json.RawMessage   `gorm:"column:config;type:jsonb;not null" json:"config"`
	PublishedAt *time.Time        `gorm:"column:published_at" json:"published_at,omitempty"`
	PublishedBy string            `gorm:"column:published_by;size:64" json:"published_by,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (RuleVersion) TableName() string { return "rule_versions" }

// Decode unmarshals Config into its typed representation.
func (rv *RuleVersion) Decode() (*RuleVersionConfig, error) {
	var cfg RuleVersionConfig
	if err := json.Unmarshal(rv.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode rule version config: %w", err)
	}
	return &cfg, nil
}

// Encode marshals cfg into Config.
func (rv *RuleVersion) Encode(cfg *RuleVersionConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode rule version config: %w", err)
	}
	rv.Config = raw
	return nil
}

// NextLabel computes the next monotonically-increasing version label
// following the V<major>.<minor> grammar: a publish bumps the minor
// component, leaving the major component for callers that want to
// branch a new major line explicitly.
func NextLabel(current string) (string, error) {
	if current == "" {
		return "V1.0", nil
	}
	var major, minor int
	if _, err := fmt.Sscanf(current, "V%d.%d", &major, &minor); err != nil {
		return "", fmt.Errorf("malformed version label %q: %w", current, err)
	}
	return fmt.Sprintf("V%d.%d", major, minor+1), nil
}
