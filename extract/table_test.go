package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"idp.evalgo.org/ocr"
)

func tableBox(text string, x, y int) ocr.TextBox {
	return ocr.TextBox{Text: text, Confidence: 0.9, Box: ocr.BoundingBox{X: x, Y: y, Width: 20, Height: 10}}
}

func TestTableStrategy_SelectColumn(t *testing.T) {
	boxes := []ocr.TextBox{
		tableBox("SKU", 0, 0), tableBox("Qty", 30, 0),
		tableBox("A100", 0, 20), tableBox("5", 30, 20),
		tableBox("A200", 0, 40), tableBox("3", 30, 40),
	}
	doc := &ocr.Result{Pages: []ocr.Page{{Number: 1, Confidence: 0.9, Boxes: boxes}}}

	params, _ := json.Marshal(TableParams{TableHeader: "SKU", ColumnName: "Qty"})
	field, err := TableStrategy{}.Extract(context.Background(), doc, true, params)
	require.NoError(t, err)
	values, ok := field.Value.([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"5", "3"}, values)
}

func TestTableStrategy_FilterRow(t *testing.T) {
	boxes := []ocr.TextBox{
		tableBox("SKU", 0, 0), tableBox("Qty", 30, 0),
		tableBox("A100", 0, 20), tableBox("5", 30, 20),
		tableBox("A200", 0, 40), tableBox("3", 30, 40),
	}
	doc := &ocr.Result{Pages: []ocr.Page{{Number: 1, Confidence: 0.9, Boxes: boxes}}}

	params, _ := json.Marshal(TableParams{TableHeader: "SKU", ColumnName: "Qty", FilterKey: "SKU", FilterValue: "A200"})
	field, err := TableStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "3", field.Value)
}

func TestTableStrategy_NoMatchingHeader(t *testing.T) {
	boxes := []ocr.TextBox{tableBox("SKU", 0, 0), tableBox("Qty", 30, 0), tableBox("A100", 0, 20), tableBox("5", 30, 20)}
	doc := &ocr.Result{Pages: []ocr.Page{{Number: 1, Confidence: 0.9, Boxes: boxes}}}

	params, _ := json.Marshal(TableParams{TableHeader: "Missing", ColumnName: "Qty"})
	field, err := TableStrategy{}.Extract(context.Background(), doc, false, params)
	require.NoError(t, err)
	assert.Equal(t, "", field.Value)
}

func TestMergeCrossPageTables_MatchingHeaderMerges(t *testing.T) {
	page1 := []ocr.TextBox{tableBox("SKU", 0, 0), tableBox("Qty", 30, 0), tableBox("A100", 0, 20), tableBox("5", 30, 20)}
	page2 := []ocr.TextBox{tableBox("SKU", 0, 0), tableBox("Qty", 30, 0), tableBox("A200", 0, 20), tableBox("3", 30, 20)}
	doc := &ocr.Result{Pages: []ocr.Page{
		{Number: 1, Confidence: 0.9, Boxes: page1},
		{Number: 2, Confidence: 0.9, Boxes: page2},
	}}

	tables := mergeCrossPageTables(detectTables(doc))
	require.Len(t, tables, 1)
	assert.Len(t, tables[0].rows, 2)
}

func TestHeaderSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, headerSimilarity([]string{"SKU", "Qty"}, []string{"sku", "qty"}))
	assert.Less(t, headerSimilarity([]string{"SKU", "Qty"}, []string{"Name", "Price"}), 0.8)
}
