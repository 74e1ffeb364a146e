package clean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_SimplePath(t *testing.T) {
	doc := map[string]interface{}{"invoice": map[string]interface{}{"number": "INV-1"}}
	v, ok := Get(doc, "invoice.number")
	assert.True(t, ok)
	assert.Equal(t, "INV-1", v)
}

func TestGet_ArrayBroadcast(t *testing.T) {
	doc := map[string]interface{}{
		"order": map[string]interface{}{
			"line": []interface{}{
				map[string]interface{}{"qty": "5 "},
				map[string]interface{}{"qty": "3 "},
			},
		},
	}
	v, ok := Get(doc, "order.line.qty")
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"5 ", "3 "}, v)
}

func TestSet_SimplePath(t *testing.T) {
	doc := map[string]interface{}{}
	Set(doc, "invoice.number", "INV-2")
	v, _ := Get(doc, "invoice.number")
	assert.Equal(t, "INV-2", v)
}

func TestSet_ArrayBroadcast(t *testing.T) {
	doc := map[string]interface{}{
		"order": map[string]interface{}{
			"line": []interface{}{
				map[string]interface{}{"qty": "5"},
				map[string]interface{}{"qty": "3"},
			},
		},
	}
	Set(doc, "order.line.qty", []interface{}{"5", "3"})
	v, _ := Get(doc, "order.line.qty")
	assert.Equal(t, []interface{}{"5", "3"}, v)
}

func TestSet_DeepMergesObjects(t *testing.T) {
	doc := map[string]interface{}{"meta": map[string]interface{}{"a": 1}}
	Set(doc, "meta", map[string]interface{}{"b": 2})
	v, _ := Get(doc, "meta")
	m := v.(map[string]interface{})
	assert.Equal(t, 1, m["a"])
	assert.Equal(t, 2, m["b"])
}
