package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePages_Range(t *testing.T) {
	pages, err := ResolvePages("1-3", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestResolvePages_List(t *testing.T) {
	pages, err := ResolvePages("1,3,5", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, pages)
}

func TestResolvePages_LastPage(t *testing.T) {
	pages, err := ResolvePages("Last Page", 7)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, pages)
}

func TestResolvePages_MixedAndDeduped(t *testing.T) {
	pages, err := ResolvePages("1-2, 2, Last Page", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, pages)
}

func TestResolvePages_OutOfRange(t *testing.T) {
	_, err := ResolvePages("1-10", 3)
	assert.Error(t, err)
}

func TestResolvePages_Invalid(t *testing.T) {
	_, err := ResolvePages("abc", 3)
	assert.Error(t, err)

	_, err = ResolvePages("", 3)
	assert.Error(t, err)
}
