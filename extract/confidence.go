package extract

import (
	"strings"

	"idp.evalgo.org/ocr"
)

// boxOverlapConfidence averages the confidence of every OCR text box
// whose text overlaps substr, scaled to 0-100, with a +10% bonus when a
// box matches substr exactly and a -10% penalty when substr is shorter
// than 3 characters.
func boxOverlapConfidence(doc *ocr.Result, substr string) float64 {
	if doc == nil || strings.TrimSpace(substr) == "" {
		return 0
	}

	var sum float64
	var count int
	exactMatch := false
	for _, page := range doc.Pages {
		for _, box := range page.Boxes {
			if box.Text == "" {
				continue
			}
			if strings.Contains(substr, box.Text) || strings.Contains(box.Text, substr) {
				sum += box.Confidence
				count++
				if box.Text == substr {
					exactMatch = true
				}
			}
		}
	}

	var base float64
	if count == 0 {
		base = averagePageConfidence(doc) * 100
	} else {
		base = (sum / float64(count)) * 100
	}

	if exactMatch {
		base += base * 0.10
	}
	if len(substr) < 3 {
		base -= base * 0.10
	}
	return clampConfidence(base)
}

func averagePageConfidence(doc *ocr.Result) float64 {
	if len(doc.Pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range doc.Pages {
		sum += p.Confidence
	}
	return sum / float64(len(doc.Pages))
}

// charOverlapRatio returns the fraction of runes in a also present (with
// multiplicity) in b, used for the LLM fuzzy-match confidence bonus.
func charOverlapRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	counts := make(map[rune]int, len(b))
	for _, r := range b {
		counts[r]++
	}
	matched := 0
	total := 0
	for _, r := range a {
		total++
		if counts[r] > 0 {
			counts[r]--
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// llmFieldConfidence synthesizes the confidence for one LLM-extracted
// scalar value: base 70, +20 for a verbatim OCR match, +5 for a fuzzy
// match (>=80% char overlap), with a length-complexity penalty for very
// long values.
func llmFieldConfidence(ocrText, value string) float64 {
	base := 70.0
	if value == "" {
		return 0
	}
	if strings.Contains(ocrText, value) {
		base += 20
	} else if charOverlapRatio(value, ocrText) >= 0.80 {
		base += 5
	}
	if len(value) > 200 {
		base -= 10
	}
	return clampConfidence(base)
}

// llmArrayConfidence adds up to +15 on top of the base scalar formula,
// scaled by the fraction of elements that matched OCR text verbatim.
func llmArrayConfidence(ocrText string, values []string) float64 {
	if len(values) == 0 {
		return clampConfidence(70)
	}
	var sum float64
	verbatim := 0
	for _, v := range values {
		sum += llmFieldConfidence(ocrText, v)
		if strings.Contains(ocrText, v) {
			verbatim++
		}
	}
	avg := sum / float64(len(values))
	bonus := 15.0 * float64(verbatim) / float64(len(values))
	return clampConfidence(avg + bonus)
}
