package clean

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"idp.evalgo.org/common"
)

// dateInputLayouts is the fixed set of ten input formats tried, in
// order, against an unparsed date string; the first one that parses
// wins. The first seven mirror the formats a downstream cleaning service
// already recognized; the remaining three cover a US month/day/year
// order, a dotted day-first order, and a date with a time component.
var dateInputLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2006年01月02日",
	"2006.01.02",
	"20060102",
	"01/02/2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
}

const defaultOutputLayout = "2006-01-02"

// OpType names one cleaning operation kind.
type OpType string

const (
	OpRegexReplace OpType = "regex_replace"
	OpTrim         OpType = "trim"
	OpFormatDate   OpType = "format_date"
)

// Op is one declared cleaning step. Params is interpreted according to
// Type: regex_replace reads pattern/replacement, format_date reads
// target_format (defaulting to "2006-01-02").
type Op struct {
	Type   OpType          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

type regexReplaceParams struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

type formatDateParams struct {
	TargetFormat string `json:"target_format"`
}

// Apply runs value through ops in declared order, returning the final
// string. An op that cannot be applied (a regex that does not compile, a
// date matching none of the input layouts) is skipped and its input value
// passes through unchanged; regex_replace params that are not valid JSON
// abort the chain with an error.
func Apply(value interface{}, ops []Op) (string, error) {
	if value == nil {
		return "", nil
	}
	current := toString(value)

	for _, op := range ops {
		switch op.Type {
		case OpRegexReplace:
			var p regexReplaceParams
			if err := json.Unmarshal(op.Params, &p); err != nil {
				return "", common.ParseError("regex_replace op", "json", err)
			}
			next, err := RegexReplace(current, p.Pattern, p.Replacement)
			if err != nil {
				continue
			}
			current = next
		case OpTrim:
			current = Trim(current)
		case OpFormatDate:
			var p formatDateParams
			if op.Params != nil {
				_ = json.Unmarshal(op.Params, &p)
			}
			if p.TargetFormat == "" {
				p.TargetFormat = defaultOutputLayout
			}
			current = FormatDate(current, p.TargetFormat)
		}
	}
	return current, nil
}

// RegexReplace applies a single regexp.ReplaceAll.
func RegexReplace(value, pattern, replacement string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return value, common.ValidationError("pattern", "invalid regex: "+err.Error())
	}
	return re.ReplaceAllString(value, replacement), nil
}

// Trim strips leading and trailing whitespace.
func Trim(value string) string {
	return strings.TrimSpace(value)
}

// FormatDate tries every layout in dateInputLayouts against value and
// reformats the first match into targetFormat. Values matching none of
// the layouts pass through unchanged.
func FormatDate(value, targetFormat string) string {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(targetFormat)
		}
	}
	return value
}

func toString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return strings.Trim(string(raw), `"`)
}
