package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"idp.evalgo.org/common"
	"idp.evalgo.org/ocr"
)

// RegexParams configures the regex strategy: a pattern matched against
// the merged OCR text, a match mode (first or all matches), and which
// capture group to return (0 = whole match).
type RegexParams struct {
	Pattern      string `json:"pattern"`
	MatchMode    string `json:"match_mode"`
	CaptureGroup int    `json:"capture_group"`
}

const (
	MatchFirst = "first"
	MatchAll   = "all"
)

// RegexStrategy matches a pattern against the full merged OCR text.
type RegexStrategy struct{}

func (RegexStrategy) Extract(ctx context.Context, doc *ocr.Result, isArray bool, raw json.RawMessage) (Field, error) {
	var p RegexParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return Field{}, common.ParseError("regex params", "json", err)
	}
	if p.MatchMode == "" {
		p.MatchMode = MatchFirst
	}

	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return Field{}, common.ValidationError("pattern", "invalid regex: "+err.Error())
	}

	text := ""
	if doc != nil {
		text = doc.FullText
	}

	group := func(m []string) string {
		if p.CaptureGroup < len(m) {
			return m[p.CaptureGroup]
		}
		return m[0]
	}

	if p.MatchMode == MatchAll || isArray {
		matches := re.FindAllStringSubmatch(text, -1)
		values := make([]interface{}, 0, len(matches))
		var confSum float64
		for _, m := range matches {
			v := group(m)
			values = append(values, v)
			confSum += boxOverlapConfidence(doc, v)
		}
		conf := 0.0
		if len(matches) > 0 {
			conf = confSum / float64(len(matches))
		}
		return Field{Value: values, Confidence: conf, SourcePage: firstMatchingPage(doc, values)}, nil
	}

	m := re.FindStringSubmatch(text)
	if m == nil {
		return Field{Value: "", Confidence: 0}, nil
	}
	v := group(m)
	return Field{Value: v, Confidence: boxOverlapConfidence(doc, v), SourcePage: firstMatchingPage(doc, []interface{}{v})}, nil
}

func firstMatchingPage(doc *ocr.Result, values []interface{}) int {
	if doc == nil {
		return 0
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		for _, page := range doc.Pages {
			if strings.Contains(page.Text, s) {
				return page.Number
			}
		}
	}
	return 0
}
