package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"idp.evalgo.org/common"
	"idp.evalgo.org/ocr"
)

// AnchorParams configures the anchor strategy: locate AnchorText (plain
// substring unless Regex is set), then take the text to its right bounded
// by MaxDistance characters and, if present, truncated at EndMarker.
type AnchorParams struct {
	AnchorText  string `json:"anchor_text"`
	Regex       bool   `json:"regex"`
	MaxDistance int    `json:"max_distance"`
	EndMarker   string `json:"end_marker"`
}

const defaultMaxDistance = 200

// AnchorStrategy reads a value relative to a located anchor keyword.
type AnchorStrategy struct{}

func (AnchorStrategy) Extract(ctx context.Context, doc *ocr.Result, isArray bool, raw json.RawMessage) (Field, error) {
	var p AnchorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return Field{}, common.ParseError("anchor params", "json", err)
	}
	if p.MaxDistance <= 0 {
		p.MaxDistance = defaultMaxDistance
	}
	p.EndMarker = unescapeMarker(p.EndMarker)

	text := ""
	if doc != nil {
		text = doc.FullText
	}

	positions, err := anchorEndPositions(text, p)
	if err != nil {
		return Field{}, err
	}

	if isArray {
		values := make([]interface{}, 0, len(positions))
		var confSum float64
		for _, end := range positions {
			v := readBoundedText(text, end, p)
			values = append(values, v)
			confSum += boxOverlapConfidence(doc, v)
		}
		conf := 0.0
		if len(positions) > 0 {
			conf = confSum / float64(len(positions))
		}
		return Field{Value: values, Confidence: conf}, nil
	}

	if len(positions) == 0 {
		return Field{Value: "", Confidence: 0}, nil
	}
	v := readBoundedText(text, positions[0], p)
	return Field{Value: v, Confidence: boxOverlapConfidence(doc, v)}, nil
}

// anchorEndPositions returns, for every anchor occurrence, the text index
// immediately following the anchor match.
func anchorEndPositions(text string, p AnchorParams) ([]int, error) {
	if p.Regex {
		re, err := regexp.Compile(p.AnchorText)
		if err != nil {
			return nil, common.ValidationError("anchor_text", "invalid regex: "+err.Error())
		}
		locs := re.FindAllStringIndex(text, -1)
		ends := make([]int, 0, len(locs))
		for _, loc := range locs {
			ends = append(ends, loc[1])
		}
		return ends, nil
	}

	var ends []int
	from := 0
	for {
		idx := strings.Index(text[from:], p.AnchorText)
		if idx < 0 {
			break
		}
		end := from + idx + len(p.AnchorText)
		ends = append(ends, end)
		from = end
	}
	return ends, nil
}

func readBoundedText(text string, start int, p AnchorParams) string {
	if start < 0 || start > len(text) {
		return ""
	}
	limit := start + p.MaxDistance
	if limit > len(text) {
		limit = len(text)
	}
	right := text[start:limit]

	if p.EndMarker != "" {
		if idx := strings.Index(right, p.EndMarker); idx >= 0 {
			right = right[:idx]
		}
	}
	return strings.TrimSpace(right)
}

func unescapeMarker(marker string) string {
	switch marker {
	case `\n`:
		return "\n"
	case `\t`:
		return "\t"
	default:
		return marker
	}
}
