// Package inventory implements the cost and inventory ledger: issuing
// medication lines against material stock with an atomic compare-and-
// decrement, an immutable transaction log, and cost accumulation onto the
// consuming treatment cohort. Lines in one request are processed
// independently; one line failing on stock never aborts the others.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store"
)

// Store is the store surface the ledger needs.
type Store interface {
	store.StockStore
	store.CohortStore
}

// IssueLine is one requested medication issuance.
type IssueLine struct {
	MaterialID string `json:"material_id"`
	Quantity   int64  `json:"quantity"`
}

// IssueRequest issues one or more medication lines, optionally charging the
// cost to a treatment cohort.
type IssueRequest struct {
	Lines     []IssueLine `json:"lines"`
	CohortRef string      `json:"cohort_ref,omitempty"`
	Reason    string      `json:"reason,omitempty"`

	// RequestID keys the idempotency tokens on the ledger rows. Generated
	// when empty; callers retrying a failed request should reuse theirs.
	RequestID string `json:"request_id,omitempty"`
}

// LineResult is the per-line outcome. Err is nil on success; a failed line
// carries its rejection and leaves no trace in stock or the ledger.
type LineResult struct {
	MaterialID string       `json:"material_id"`
	Quantity   int64        `json:"quantity"`
	Before     int64        `json:"before,omitempty"`
	After      int64        `json:"after,omitempty"`
	UnitPrice  domain.Cents `json:"unit_price,omitempty"`
	Cost       domain.Cents `json:"cost,omitempty"`
	Err        error        `json:"-"`
}

// Ledger issues medication against stock.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// NewLedger creates the inventory ledger.
func NewLedger(st Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: st, logger: logger.With("component", "inventory")}
}

// IssueMedication processes each line independently: atomic stock decrement,
// immutable ledger row, business issue record, and cost accumulation onto
// the cohort. The returned slice is positional with the request lines; the
// call-level error is reserved for an empty request, never for line
// rejections.
func (l *Ledger) IssueMedication(ctx context.Context, req IssueRequest) ([]LineResult, error) {
	if len(req.Lines) == 0 {
		return nil, domain.NewValidationError("lines", "at least one line is required")
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	results := make([]LineResult, len(req.Lines))
	for i, line := range req.Lines {
		results[i] = l.issueLine(ctx, line, req, fmt.Sprintf("%s:%d", requestID, i))
	}
	return results, nil
}

func (l *Ledger) issueLine(ctx context.Context, line IssueLine, req IssueRequest, idemKey string) LineResult {
	result := LineResult{MaterialID: line.MaterialID, Quantity: line.Quantity}

	if line.Quantity <= 0 {
		result.Err = domain.NewValidationError("quantity", "quantity must be > 0")
		return result
	}

	material, err := l.store.GetMaterial(ctx, line.MaterialID)
	if err != nil {
		result.Err = err
		return result
	}

	before, after, err := l.store.DecrementStock(ctx, line.MaterialID, line.Quantity)
	if err != nil {
		result.Err = err
		return result
	}
	result.Before = before
	result.After = after
	result.UnitPrice = material.UnitPrice
	result.Cost = material.UnitPrice.Mul(line.Quantity)

	now := time.Now().UTC()
	if err := l.store.AppendLedger(ctx, domain.LedgerEntry{
		ID:             uuid.New().String(),
		MaterialID:     line.MaterialID,
		Quantity:       -line.Quantity,
		Before:         before,
		After:          after,
		Reason:         req.Reason,
		RelatedID:      req.CohortRef,
		IdempotencyKey: idemKey,
		At:             now,
	}); err != nil {
		// The decrement committed; compensate it rather than leave stock
		// and the ledger disagreeing.
		l.compensate(ctx, line, err)
		result.Err = err
		return result
	}

	if err := l.store.AppendIssue(ctx, domain.IssueRecord{
		ID:         uuid.New().String(),
		MaterialID: line.MaterialID,
		Quantity:   line.Quantity,
		UnitPrice:  material.UnitPrice,
		Cost:       result.Cost,
		CohortRef:  req.CohortRef,
		Reason:     req.Reason,
		IssuedAt:   now,
	}); err != nil {
		l.warn("append issue record", line.MaterialID, err)
	}

	if req.CohortRef != "" {
		if err := l.store.AddCohortCost(ctx, req.CohortRef, result.Cost, result.Cost); err != nil {
			l.warn("accumulate cohort medication cost", req.CohortRef, err)
		}
	}

	l.logger.Info("medication issued",
		"material_id", line.MaterialID,
		"quantity", line.Quantity,
		"stock_after", after,
		"cohort_ref", req.CohortRef)
	return result
}

// compensate restores a decrement whose ledger row could not be written.
func (l *Ledger) compensate(ctx context.Context, line IssueLine, cause error) {
	l.warn("append ledger row", line.MaterialID, cause)
	if _, err := l.store.IncrementStock(ctx, line.MaterialID, line.Quantity); err != nil {
		l.logger.Error("stock compensation failed; stock and ledger disagree",
			"material_id", line.MaterialID,
			"quantity", line.Quantity,
			"error", err)
	}
}

func (l *Ledger) warn(effect, ref string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	l.logger.Warn("bookkeeping side effect failed",
		"error", &domain.SideEffectWarning{Effect: effect, Ref: ref, Cause: err})
}
