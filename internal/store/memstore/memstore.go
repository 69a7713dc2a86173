// Package memstore provides a mutex-guarded in-memory implementation of the
// store port. Suitable for development and tests; production deployments use
// redisstore. The conditional-update semantics are identical: every
// guarded mutation happens under the store lock, so concurrent callers
// observe the same first-writer-wins behavior as the Lua-scripted Redis
// operations.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
)

// Store is an in-memory document store.
type Store struct {
	mu sync.Mutex

	jobs       map[string]*domain.DiagnosisJob
	cohorts    map[string]*domain.TreatmentCohort
	deaths     map[string]*domain.DeathRecord // keyed by treatmentRef
	materials  map[string]*domain.MaterialStock
	ledgers    map[string][]domain.LedgerEntry
	issues     []domain.IssueRecord
	batches    map[string]*domain.BatchHeadcount
	examples   map[string]domain.FewShotExample // keyed by job id
	windowSize int
}

// DefaultWindowCapacity bounds the few-shot candidate pool.
const DefaultWindowCapacity = 50

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:       make(map[string]*domain.DiagnosisJob),
		cohorts:    make(map[string]*domain.TreatmentCohort),
		deaths:     make(map[string]*domain.DeathRecord),
		materials:  make(map[string]*domain.MaterialStock),
		ledgers:    make(map[string][]domain.LedgerEntry),
		batches:    make(map[string]*domain.BatchHeadcount),
		examples:   make(map[string]domain.FewShotExample),
		windowSize: DefaultWindowCapacity,
	}
}

// clone deep-copies a document through JSON so callers never alias store
// memory. Documents here are plain data; a marshal failure is a programming
// error surfaced loudly.
func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memstore: clone marshal: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memstore: clone unmarshal: %v", err))
	}
	return out
}

// CreateJob persists a new job document.
func (s *Store) CreateJob(_ context.Context, job *domain.DiagnosisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = clone(job)
	return nil
}

// GetJob reads a job document.
func (s *Store) GetJob(_ context.Context, id string) (*domain.DiagnosisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return clone(job), nil
}

// CompleteJob applies the terminal write if the job is still processing.
func (s *Store) CompleteJob(_ context.Context, id string, completion domain.JobCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = completion.Status()
	if completion.Result != nil {
		job.Result = clone(completion.Result)
	}
	job.Error = completion.Error
	job.CompletedAt = time.Now().UTC()
	return true, nil
}

// MarkJobTreated sets the archival flag and treatment link after adoption.
func (s *Store) MarkJobTreated(_ context.Context, id, cohortID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.HasTreatment = true
	job.TreatmentRef = cohortID
	return nil
}

// SaveCorrection persists the correction block onto the job.
func (s *Store) SaveCorrection(_ context.Context, id string, cor domain.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Correction = cor
	return nil
}

// CreateCohort persists a new treatment cohort.
func (s *Store) CreateCohort(_ context.Context, c *domain.TreatmentCohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cohorts[c.ID] = clone(c)
	return nil
}

// GetCohort reads a cohort.
func (s *Store) GetCohort(_ context.Context, id string) (*domain.TreatmentCohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cohorts[id]
	if !ok {
		return nil, domain.ErrCohortNotFound
	}
	return clone(c), nil
}

// ApplyProgress applies one progress update under the store lock, delegating
// validation and the terminal transition to the domain state machine.
func (s *Store) ApplyProgress(_ context.Context, id string, kind domain.ProgressKind, count int64) (domain.ProgressOutcome, *domain.TreatmentCohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cohorts[id]
	if !ok {
		return domain.ProgressOutcome{}, nil, domain.ErrCohortNotFound
	}
	out, err := c.ApplyProgress(kind, count)
	if err != nil {
		return domain.ProgressOutcome{}, nil, err
	}
	return out, clone(c), nil
}

// AddCohortCost accumulates medication and total cost.
func (s *Store) AddCohortCost(_ context.Context, id string, medication, total domain.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cohorts[id]
	if !ok {
		return domain.ErrCohortNotFound
	}
	c.MedicationCost = c.MedicationCost.Add(medication)
	c.TotalCost = c.TotalCost.Add(total)
	return nil
}

// AddCuredCost accumulates the cured-outcome bookkeeping figure.
func (s *Store) AddCuredCost(_ context.Context, id string, amount domain.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cohorts[id]
	if !ok {
		return domain.ErrCohortNotFound
	}
	c.CuredCost = c.CuredCost.Add(amount)
	return nil
}

// AccumulateDeath creates or merges the cohort's death record.
func (s *Store) AccumulateDeath(_ context.Context, batchRef, treatmentRef, cause string, count int64, unitCost domain.Cents) (*domain.DeathRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deaths[treatmentRef]
	if !ok {
		rec = domain.NewDeathRecord(batchRef, treatmentRef, cause, count, unitCost)
		s.deaths[treatmentRef] = rec
	} else {
		rec.Accumulate(count, unitCost)
	}
	return clone(rec), nil
}

// GetDeathRecord reads a cohort's death record.
func (s *Store) GetDeathRecord(_ context.Context, treatmentRef string) (*domain.DeathRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deaths[treatmentRef]
	if !ok {
		return nil, domain.ErrDeathRecordNotFound
	}
	return clone(rec), nil
}

// MirrorCorrection upserts the correction mirror onto a death record.
// A missing record is tolerated.
func (s *Store) MirrorCorrection(_ context.Context, treatmentRef, correctedCause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deaths[treatmentRef]
	if !ok {
		return nil
	}
	rec.MirrorCorrection(correctedCause)
	return nil
}

// PutMaterial seeds or replaces a material stock view.
func (s *Store) PutMaterial(_ context.Context, m *domain.MaterialStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.MaterialID] = clone(m)
	return nil
}

// GetMaterial reads a material stock view.
func (s *Store) GetMaterial(_ context.Context, materialID string) (*domain.MaterialStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[materialID]
	if !ok {
		return nil, domain.ErrMaterialNotFound
	}
	return clone(m), nil
}

// DecrementStock checks and decrements stock in one guarded step.
func (s *Store) DecrementStock(_ context.Context, materialID string, qty int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[materialID]
	if !ok {
		return 0, 0, domain.ErrMaterialNotFound
	}
	if m.CurrentStock < qty {
		return 0, 0, &domain.ResourceUnavailableError{
			Resource:  "material",
			ID:        materialID,
			Requested: qty,
			Available: m.CurrentStock,
		}
	}
	before := m.CurrentStock
	m.CurrentStock -= qty
	return before, m.CurrentStock, nil
}

// IncrementStock restores stock.
func (s *Store) IncrementStock(_ context.Context, materialID string, qty int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[materialID]
	if !ok {
		return 0, domain.ErrMaterialNotFound
	}
	m.CurrentStock += qty
	return m.CurrentStock, nil
}

// AppendLedger appends an immutable transaction row.
func (s *Store) AppendLedger(_ context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[entry.MaterialID] = append(s.ledgers[entry.MaterialID], entry)
	return nil
}

// Ledger returns the transaction rows for a material in append order.
func (s *Store) Ledger(_ context.Context, materialID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LedgerEntry, len(s.ledgers[materialID]))
	copy(out, s.ledgers[materialID])
	return out, nil
}

// AppendIssue appends a business-facing issue record.
func (s *Store) AppendIssue(_ context.Context, rec domain.IssueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, rec)
	return nil
}

// PutBatch seeds or replaces a batch headcount view.
func (s *Store) PutBatch(_ context.Context, b *domain.BatchHeadcount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.BatchID] = clone(b)
	return nil
}

// GetBatch reads a batch headcount view.
func (s *Store) GetBatch(_ context.Context, batchID string) (*domain.BatchHeadcount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return clone(b), nil
}

// AddDead moves n animals from the live count to the dead count.
func (s *Store) AddDead(_ context.Context, batchID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	b.DeadCount += n
	b.CurrentCount -= n
	return nil
}

// AddSick adjusts the sick count, clamped at zero.
func (s *Store) AddSick(_ context.Context, batchID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	b.SickCount += delta
	if b.SickCount < 0 {
		b.SickCount = 0
	}
	return nil
}

// AdmitExample replaces the job's entry in the candidate pool, evicting the
// lowest-ranked entry when the pool is full.
func (s *Store) AdmitExample(_ context.Context, ex domain.FewShotExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples[ex.JobID] = ex
	if len(s.examples) > s.windowSize {
		ranked := s.rankedLocked()
		for _, victim := range ranked[s.windowSize:] {
			delete(s.examples, victim.JobID)
		}
	}
	return nil
}

// Window returns up to n examples by rating desc, then recency desc.
func (s *Store) Window(_ context.Context, n int) ([]domain.FewShotExample, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ranked := s.rankedLocked()
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func (s *Store) rankedLocked() []domain.FewShotExample {
	out := make([]domain.FewShotExample, 0, len(s.examples))
	for _, ex := range s.examples {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccuracyRating != out[j].AccuracyRating {
			return out[i].AccuracyRating > out[j].AccuracyRating
		}
		return out[i].CorrectedAt.After(out[j].CorrectedAt)
	})
	return out
}
