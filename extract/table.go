package extract

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"idp.evalgo.org/common"
	"idp.evalgo.org/ocr"
)

// TableParams selects one column from a detected table, optionally
// filtering rows by a key=value predicate against another column.
type TableParams struct {
	TableHeader string `json:"table_header"`
	ColumnName  string `json:"column_name"`
	FilterKey   string `json:"filter_key,omitempty"`
	FilterValue string `json:"filter_value,omitempty"`
}

const rowYThreshold = 10
const headerSimilarityThreshold = 0.8

// detectedRow is one clustered row: its cells left to right, plus the
// y-coordinate of the row's first box, used to cluster it.
type detectedRow struct {
	y     int
	cells []string
}

// detectedTable is a clustered, header-merged table ready for column
// selection.
type detectedTable struct {
	header []string
	rows   []detectedRow
}

// TableStrategy selects one column's values out of a table detected by
// clustering OCR text boxes into rows.
type TableStrategy struct{}

func (TableStrategy) Extract(ctx context.Context, doc *ocr.Result, isArray bool, raw json.RawMessage) (Field, error) {
	var p TableParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return Field{}, common.ParseError("table params", "json", err)
	}
	if p.ColumnName == "" {
		return Field{}, common.ValidationError("column_name", "table extraction requires column_name")
	}

	tables := detectTables(doc)
	tables = mergeCrossPageTables(tables)

	target := selectTable(tables, p.TableHeader)
	if target == nil {
		return Field{Value: "", Confidence: 0}, nil
	}

	colIdx := columnIndex(target.header, p.ColumnName)
	if colIdx < 0 {
		return Field{Value: "", Confidence: 0}, nil
	}
	filterIdx := -1
	if p.FilterKey != "" {
		filterIdx = columnIndex(target.header, p.FilterKey)
	}

	var values []interface{}
	for _, row := range target.rows {
		if filterIdx >= 0 && filterIdx < len(row.cells) && row.cells[filterIdx] != p.FilterValue {
			continue
		}
		if colIdx < len(row.cells) {
			values = append(values, row.cells[colIdx])
		}
	}

	conf := tableConfidence(doc)
	if !isArray {
		if len(values) == 0 {
			return Field{Value: "", Confidence: 0}, nil
		}
		return Field{Value: values[0], Confidence: conf}, nil
	}
	return Field{Value: values, Confidence: conf}, nil
}

// detectTables clusters every page's text boxes into rows by y-coordinate
// proximity (threshold 10px), sorts each row by x, and keeps only
// clusters with at least 2 consistently-present columns. The first row of
// a cluster becomes its header.
func detectTables(doc *ocr.Result) []*detectedTable {
	if doc == nil {
		return nil
	}

	var tables []*detectedTable
	for _, page := range doc.Pages {
		rows := clusterRows(page.Boxes)
		if len(rows) < 2 {
			continue
		}
		columnCount := len(rows[0].cells)
		if columnCount < 2 {
			continue
		}
		consistent := true
		for _, r := range rows[1:] {
			if len(r.cells) < 2 {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}
		tables = append(tables, &detectedTable{header: rows[0].cells, rows: rows[1:]})
	}
	return tables
}

func clusterRows(boxes []ocr.TextBox) []detectedRow {
	var rows []detectedRow
	var members [][]ocr.TextBox
	for _, box := range boxes {
		y := box.Box.Y
		placed := false
		for i := range rows {
			if abs(rows[i].y-y) <= rowYThreshold {
				members[i] = append(members[i], box)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, detectedRow{y: y})
			members = append(members, []ocr.TextBox{box})
		}
	}
	for i, row := range members {
		sort.SliceStable(row, func(a, b int) bool { return row[a].Box.X < row[b].Box.X })
		for _, box := range row {
			rows[i].cells = append(rows[i].cells, box.Text)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].y < rows[j].y })
	return rows
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// mergeCrossPageTables folds a table into the preceding one when its
// first row matches the preceding table's header by at least 80% cell
// similarity.
func mergeCrossPageTables(tables []*detectedTable) []*detectedTable {
	if len(tables) < 2 {
		return tables
	}
	merged := []*detectedTable{tables[0]}
	for _, t := range tables[1:] {
		last := merged[len(merged)-1]
		if headerSimilarity(last.header, t.header) >= headerSimilarityThreshold {
			last.rows = append(last.rows, t.rows...)
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

func headerSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			matches++
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(matches) / float64(longest)
}

func selectTable(tables []*detectedTable, header string) *detectedTable {
	if header == "" {
		if len(tables) == 0 {
			return nil
		}
		return tables[0]
	}
	for _, t := range tables {
		for _, h := range t.header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(header)) {
				return t
			}
		}
	}
	return nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func tableConfidence(doc *ocr.Result) float64 {
	if doc == nil || len(doc.Pages) == 0 {
		return 80
	}
	return clampConfidence(averagePageConfidence(doc) * 100)
}
