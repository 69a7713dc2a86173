package domain

import (
	"time"
)

// MaterialStock is the inventory view of one medication or material.
// CurrentStock is mutated only through store-level atomic decrements;
// application code never read-modify-writes it.
type MaterialStock struct {
	MaterialID   string `json:"material_id"`
	Name         string `json:"name"`
	Unit         string `json:"unit,omitempty"`
	CurrentStock int64  `json:"current_stock"`
	UnitPrice    Cents  `json:"unit_price"`
}

// BatchHeadcount is the headcount view of one animal batch. All counters are
// mutated through atomic increments to survive concurrent writers.
type BatchHeadcount struct {
	BatchID      string `json:"batch_id"`
	CurrentCount int64  `json:"current_count"`
	DeadCount    int64  `json:"dead_count"`
	SickCount    int64  `json:"sick_count"`

	// EntryUnitPrice is the per-head acquisition cost, the fallback basis
	// for death loss accounting when no treatment cost has accrued.
	EntryUnitPrice Cents `json:"entry_unit_price"`
}

// LedgerEntry is one immutable row in the stock transaction log. Quantity is
// signed: negative for issues, positive for restocks. Before/After snapshot
// the stock level around the atomic mutation that produced the row.
type LedgerEntry struct {
	ID         string `json:"id"`
	MaterialID string `json:"material_id"`
	Quantity   int64  `json:"quantity"`
	Before     int64  `json:"before"`
	After      int64  `json:"after"`

	Reason    string `json:"reason"`
	RelatedID string `json:"related_id,omitempty"`

	// IdempotencyKey deduplicates compensating writes when the store cannot
	// provide a genuine multi-document transaction.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	At time.Time `json:"at"`
}

// IssueRecord is the business-facing record of one medication issuance,
// written alongside the ledger row.
type IssueRecord struct {
	ID         string    `json:"id"`
	MaterialID string    `json:"material_id"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  Cents     `json:"unit_price"`
	Cost       Cents     `json:"cost"`
	CohortRef  string    `json:"cohort_ref,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}
