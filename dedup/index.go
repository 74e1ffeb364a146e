// Package dedup implements the content-hash dedup lookup backing the
// uploader's "instant" job path: given (content-hash, rule-id,
// rule-version), find the most recent terminal job for that triple
// without re-running OCR/extraction.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"idp.evalgo.org/common"
)

const keyPrefix = "dedup:"

// Index is a Redis-backed dedup lookup. Each (content-hash, rule-id,
// rule-version) triple maps to a sorted set of job IDs scored by
// created_at (unix-nano), so Lookup is a single ZREVRANGE — newest job
// first — mirroring the processing/deadline sorted-set idiom the
// teacher used for its Redis queue's processing set.
type Index struct {
	client *redis.Client
}

// NewIndex opens a Redis client against addr and verifies connectivity.
func NewIndex(ctx context.Context, addr, password string, db int) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, common.NetworkError("connect to redis", addr, err)
	}
	return &Index{client: client}, nil
}

// NewIndexFromClient wraps an already-constructed *redis.Client, used by
// tests against miniredis.
func NewIndexFromClient(client *redis.Client) *Index {
	return &Index{client: client}
}

// Close closes the underlying Redis connection.
func (idx *Index) Close() error {
	return idx.client.Close()
}

func key(contentHash, ruleID, ruleVersion string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, contentHash, ruleID, ruleVersion)
}

// Record adds jobID to the (content-hash, rule-id, rule-version) sorted
// set, scored by createdAt so later lookups return the newest entry
// first. Called once a job reaches a terminal completed/push_success
// status.
func (idx *Index) Record(ctx context.Context, contentHash, ruleID, ruleVersion, jobID string, createdAt time.Time) error {
	err := idx.client.ZAdd(ctx, key(contentHash, ruleID, ruleVersion), redis.Z{
		Score:  float64(createdAt.UnixNano()),
		Member: jobID,
	}).Err()
	if err != nil {
		return common.DatabaseError("record dedup entry", err)
	}
	return nil
}

// Lookup returns the newest job ID recorded for the triple, or ("",
// false, nil) when no entry exists.
func (idx *Index) Lookup(ctx context.Context, contentHash, ruleID, ruleVersion string) (string, bool, error) {
	result, err := idx.client.ZRevRange(ctx, key(contentHash, ruleID, ruleVersion), 0, 0).Result()
	if err != nil {
		return "", false, common.DatabaseError("lookup dedup entry", err)
	}
	if len(result) == 0 {
		return "", false, nil
	}
	return result[0], true, nil
}

// Remove drops jobID from the triple's sorted set, used when a
// deduplicated job's source record is later retracted.
func (idx *Index) Remove(ctx context.Context, contentHash, ruleID, ruleVersion, jobID string) error {
	err := idx.client.ZRem(ctx, key(contentHash, ruleID, ruleVersion), jobID).Err()
	if err != nil {
		return common.DatabaseError("remove dedup entry", err)
	}
	return nil
}
