package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pasturelab/vettriage/internal/domain"
)

func newID() string { return uuid.New().String() }

// decrementStockScript checks coverage and decrements in one atomic step so
// stock can never go negative under concurrent issuers.
//
// KEYS[1] = stock hash
// ARGV[1] = quantity
//
// Returns {1, before, after} on success, {0, current} when short, {-1} when
// the material is missing.
const decrementStockScript = `
	local cur = redis.call('HGET', KEYS[1], 'stock')
	if not cur then return {-1} end
	cur = tonumber(cur)
	local qty = tonumber(ARGV[1])
	if cur < qty then return {0, cur} end
	local after = redis.call('HINCRBY', KEYS[1], 'stock', -qty)
	return {1, cur, after}
`

// addSickScript adjusts the sick counter and clamps it at zero.
//
// KEYS[1] = batch hash
// ARGV[1] = delta
const addSickScript = `
	local v = redis.call('HINCRBY', KEYS[1], 'sick', tonumber(ARGV[1]))
	if v < 0 then
		redis.call('HSET', KEYS[1], 'sick', 0)
		v = 0
	end
	return v
`

// PutMaterial seeds or replaces a material stock view.
func (s *Store) PutMaterial(ctx context.Context, m *domain.MaterialStock) error {
	err := s.client.HSet(ctx, stockKey(m.MaterialID),
		"name", m.Name,
		"unit", m.Unit,
		"stock", m.CurrentStock,
		"unit_price", int64(m.UnitPrice),
	).Err()
	if err != nil {
		return fmt.Errorf("put material %s: %w", m.MaterialID, err)
	}
	return nil
}

// GetMaterial reads a material stock view.
func (s *Store) GetMaterial(ctx context.Context, materialID string) (*domain.MaterialStock, error) {
	fields, err := s.client.HGetAll(ctx, stockKey(materialID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get material %s: %w", materialID, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrMaterialNotFound
	}
	m := &domain.MaterialStock{
		MaterialID: materialID,
		Name:       fields["name"],
		Unit:       fields["unit"],
	}
	if m.CurrentStock, err = parseInt(fields, "stock"); err != nil {
		return nil, err
	}
	price, err := parseInt(fields, "unit_price")
	if err != nil {
		return nil, err
	}
	m.UnitPrice = domain.Cents(price)
	return m, nil
}

// DecrementStock runs the guarded decrement script.
func (s *Store) DecrementStock(ctx context.Context, materialID string, qty int64) (int64, int64, error) {
	raw, err := s.client.Eval(ctx, decrementStockScript,
		[]string{stockKey(materialID)}, qty,
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("decrement stock %s: %w", materialID, err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return 0, 0, fmt.Errorf("decrement stock %s: unexpected reply %v", materialID, raw)
	}
	code, _ := reply[0].(int64)
	switch code {
	case 1:
		before, _ := reply[1].(int64)
		after, _ := reply[2].(int64)
		return before, after, nil
	case 0:
		available, _ := reply[1].(int64)
		return 0, 0, &domain.ResourceUnavailableError{
			Resource:  "material",
			ID:        materialID,
			Requested: qty,
			Available: available,
		}
	default:
		return 0, 0, domain.ErrMaterialNotFound
	}
}

// IncrementStock restores stock atomically.
func (s *Store) IncrementStock(ctx context.Context, materialID string, qty int64) (int64, error) {
	n, err := s.client.Exists(ctx, stockKey(materialID)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment stock %s: %w", materialID, err)
	}
	if n == 0 {
		return 0, domain.ErrMaterialNotFound
	}
	after, err := s.client.HIncrBy(ctx, stockKey(materialID), "stock", qty).Result()
	if err != nil {
		return 0, fmt.Errorf("increment stock %s: %w", materialID, err)
	}
	return after, nil
}

// AppendLedger appends an immutable transaction row. When the entry carries
// an idempotency key the append is deduplicated: a duplicate token becomes a
// no-op rather than a second row.
func (s *Store) AppendLedger(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.IdempotencyKey != "" {
		fresh, err := s.client.SetNX(ctx, ledgerIdemPrefix+entry.IdempotencyKey, "1", ledgerIdemTTL).Result()
		if err != nil {
			return fmt.Errorf("ledger idempotency %s: %w", entry.IdempotencyKey, err)
		}
		if !fresh {
			return nil
		}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := s.client.RPush(ctx, ledgerKey(entry.MaterialID), raw).Err(); err != nil {
		return fmt.Errorf("append ledger %s: %w", entry.MaterialID, err)
	}
	return nil
}

// Ledger returns the transaction rows for a material in append order.
func (s *Store) Ledger(ctx context.Context, materialID string) ([]domain.LedgerEntry, error) {
	rows, err := s.client.LRange(ctx, ledgerKey(materialID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", materialID, err)
	}
	out := make([]domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		var entry domain.LedgerEntry
		if err := json.Unmarshal([]byte(row), &entry); err != nil {
			return nil, fmt.Errorf("decode ledger row: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// AppendIssue appends a business-facing issue record.
func (s *Store) AppendIssue(ctx context.Context, rec domain.IssueRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal issue record: %w", err)
	}
	if err := s.client.RPush(ctx, issueListKey, raw).Err(); err != nil {
		return fmt.Errorf("append issue record: %w", err)
	}
	return nil
}

// PutBatch seeds or replaces a batch headcount view.
func (s *Store) PutBatch(ctx context.Context, b *domain.BatchHeadcount) error {
	err := s.client.HSet(ctx, batchKey(b.BatchID),
		"current", b.CurrentCount,
		"dead", b.DeadCount,
		"sick", b.SickCount,
		"entry_unit_price", int64(b.EntryUnitPrice),
	).Err()
	if err != nil {
		return fmt.Errorf("put batch %s: %w", b.BatchID, err)
	}
	return nil
}

// GetBatch reads a batch headcount view.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*domain.BatchHeadcount, error) {
	fields, err := s.client.HGetAll(ctx, batchKey(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrBatchNotFound
	}
	b := &domain.BatchHeadcount{BatchID: batchID}
	if b.CurrentCount, err = parseInt(fields, "current"); err != nil {
		return nil, err
	}
	if b.DeadCount, err = parseInt(fields, "dead"); err != nil {
		return nil, err
	}
	if b.SickCount, err = parseInt(fields, "sick"); err != nil {
		return nil, err
	}
	price, err := parseInt(fields, "entry_unit_price")
	if err != nil {
		return nil, err
	}
	b.EntryUnitPrice = domain.Cents(price)
	return b, nil
}

// AddDead moves n animals from the live count to the dead count in one
// transactional pipeline.
func (s *Store) AddDead(ctx context.Context, batchID string, n int64) error {
	exists, err := s.client.Exists(ctx, batchKey(batchID)).Result()
	if err != nil {
		return fmt.Errorf("add dead %s: %w", batchID, err)
	}
	if exists == 0 {
		return domain.ErrBatchNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, batchKey(batchID), "dead", n)
	pipe.HIncrBy(ctx, batchKey(batchID), "current", -n)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add dead %s: %w", batchID, err)
	}
	return nil
}

// AddSick adjusts the sick count, clamped at zero.
func (s *Store) AddSick(ctx context.Context, batchID string, delta int64) error {
	exists, err := s.client.Exists(ctx, batchKey(batchID)).Result()
	if err != nil {
		return fmt.Errorf("add sick %s: %w", batchID, err)
	}
	if exists == 0 {
		return domain.ErrBatchNotFound
	}
	if err := s.client.Eval(ctx, addSickScript, []string{batchKey(batchID)}, delta).Err(); err != nil {
		return fmt.Errorf("add sick %s: %w", batchID, err)
	}
	return nil
}
