package ocr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MultiPageStrategy selects which pages of a document get OCR'd.
type MultiPageStrategy string

const (
	SinglePage     MultiPageStrategy = "single_page"
	MultiPage      MultiPageStrategy = "multi_page"
	SpecifiedPages MultiPageStrategy = "specified_pages"
)

// lastPageToken is the one recognized non-numeric token in the
// page-expression grammar.
const lastPageToken = "Last Page"

// ResolvePages expands a page expression (ranges "1-3", lists "1,3,5",
// and the "Last Page" token) against a document of totalPages pages,
// returning the selected 1-based page numbers in ascending, de-duplicated
// order.
func ResolvePages(expr string, totalPages int) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty page expression")
	}

	seen := make(map[int]bool)
	var pages []int
	addPage := func(n int) error {
		if n < 1 || n > totalPages {
			return fmt.Errorf("page %d out of range [1,%d]", n, totalPages)
		}
		if !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
		return nil
	}

	for _, term := range strings.Split(expr, ",") {
		term = strings.TrimSpace(term)
		switch {
		case strings.EqualFold(term, lastPageToken):
			if err := addPage(totalPages); err != nil {
				return nil, err
			}
		case strings.Contains(term, "-"):
			parts := strings.SplitN(term, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", term, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", term, err)
			}
			if start > end {
				return nil, fmt.Errorf("invalid range %q: start > end", term)
			}
			for n := start; n <= end; n++ {
				if err := addPage(n); err != nil {
					return nil, err
				}
			}
		default:
			n, err := strconv.Atoi(term)
			if err != nil {
				return nil, fmt.Errorf("invalid page token %q: %w", term, err)
			}
			if err := addPage(n); err != nil {
				return nil, err
			}
		}
	}

	sort.Ints(pages)
	return pages, nil
}
