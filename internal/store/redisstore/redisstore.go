// Package redisstore implements the store port on Redis. Documents live in
// hashes keyed by entity id; every guarded mutation (idempotent terminal job
// write, cohort progress application, stock check-and-decrement, death record
// accumulation) runs as a single Lua script so concurrent writers cannot
// interleave between the check and the apply.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the triage document namespace.
const (
	jobKeyPrefix     = "vt:job:"
	cohortKeyPrefix  = "vt:cohort:"
	deathKeyPrefix   = "vt:death:"
	stockKeyPrefix   = "vt:stock:"
	ledgerKeyPrefix  = "vt:ledger:"
	ledgerIdemPrefix = "vt:ledger:idem:"
	issueListKey     = "vt:issues"
	batchKeyPrefix   = "vt:batch:"
	fewShotRankKey   = "vt:fewshot:rank"
	fewShotDocKey    = "vt:fewshot:doc"
)

// DefaultWindowCapacity bounds the few-shot candidate pool.
const DefaultWindowCapacity = 50

// ledgerIdemTTL bounds how long issuance idempotency tokens are remembered.
const ledgerIdemTTL = 24 * time.Hour

// Store is a Redis-backed document store.
type Store struct {
	client         redis.UniversalClient
	windowCapacity int
}

// New creates a store over an existing Redis client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client, windowCapacity: DefaultWindowCapacity}
}

func jobKey(id string) string    { return jobKeyPrefix + id }
func cohortKey(id string) string { return cohortKeyPrefix + id }
func deathKey(ref string) string { return deathKeyPrefix + ref }
func stockKey(id string) string  { return stockKeyPrefix + id }
func ledgerKey(id string) string { return ledgerKeyPrefix + id }
func batchKey(id string) string  { return batchKeyPrefix + id }

func parseInt(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}

func parseTime(fields map[string]string, name string) time.Time {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Ping checks connectivity to the backing Redis. Used by worker startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
