package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPipeline_CacheKey_ChangesWithRequirements(t *testing.T) {
	p := &Pipeline{ID: "PL_1", Requirements: "pandas==2.0\n"}
	key1 := p.CacheKey()

	p.Requirements = "pandas==2.1\n"
	key2 := p.CacheKey()

	assert.NotEqual(t, key1, key2)

	p.Requirements = "pandas==2.0\n"
	assert.Equal(t, key1, p.CacheKey())
}

func TestNextRetryDelay_DoublesAndCaps(t *testing.T) {
	base := 5 * time.Second
	cap := 300 * time.Second

	assert.Equal(t, 10*time.Second, NextRetryDelay(1, base, cap))
	assert.Equal(t, 20*time.Second, NextRetryDelay(2, base, cap))

	assert.Equal(t, cap, NextRetryDelay(20, base, cap))
}
