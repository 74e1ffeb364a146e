package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewIndexFromClient(client)
}

func TestIndex_LookupMiss(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	id, found, err := idx.Lookup(ctx, "hash1", "rule1", "V1.0")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestIndex_RecordAndLookup_NewestWins(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, idx.Record(ctx, "hash1", "rule1", "V1.0", "job-old", base))
	require.NoError(t, idx.Record(ctx, "hash1", "rule1", "V1.0", "job-new", base.Add(time.Hour)))

	id, found, err := idx.Lookup(ctx, "hash1", "rule1", "V1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "job-new", id)
}

func TestIndex_DistinctTriplesAreIsolated(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, "hash1", "rule1", "V1.0", "job-a", time.Now()))
	require.NoError(t, idx.Record(ctx, "hash1", "rule1", "V2.0", "job-b", time.Now()))

	id, found, err := idx.Lookup(ctx, "hash1", "rule1", "V1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "job-a", id)
}

func TestIndex_Remove(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, "hash1", "rule1", "V1.0", "job-a", time.Now()))
	require.NoError(t, idx.Remove(ctx, "hash1", "rule1", "V1.0", "job-a"))

	_, found, err := idx.Lookup(ctx, "hash1", "rule1", "V1.0")
	require.NoError(t, err)
	assert.False(t, found)
}
