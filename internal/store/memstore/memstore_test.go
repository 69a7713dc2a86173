package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelab/vettriage/internal/domain"
)

func testResult(tier domain.ResultTier) *domain.DiagnosisResult {
	return &domain.DiagnosisResult{
		SchemaVersion: domain.ResultSchemaVersion,
		Tier:          tier,
		IsFallback:    tier == domain.TierFallback,
		Primary:       domain.Finding{Disease: "swine influenza", Confidence: 80},
		Severity:      domain.SeverityModerate,
		Urgency:       domain.UrgencyUrgent,
	}
}

func TestCompleteJob_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	job := domain.NewDiagnosisJob("vet-1", domain.SubjectLive, "batch-1",
		domain.JobInputs{Symptoms: []string{"cough"}, AffectedCount: 2})
	require.NoError(t, s.CreateJob(ctx, job))

	completion := domain.JobCompletion{Result: testResult(domain.TierStructured)}

	applied, err := s.CompleteJob(ctx, job.ID, completion)
	require.NoError(t, err)
	assert.True(t, applied)

	first, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, first.Status)

	// A duplicate worker invocation must be a no-op that leaves the stored
	// result identical.
	applied, err = s.CompleteJob(ctx, job.ID, completion)
	require.NoError(t, err)
	assert.False(t, applied)

	second, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)

	// Even a different payload cannot overwrite a terminal job.
	applied, err = s.CompleteJob(ctx, job.ID, domain.JobCompletion{Error: "late failure"})
	require.NoError(t, err)
	assert.False(t, applied)
	third, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, third.Status)
	assert.Empty(t, third.Error)
}

func TestApplyProgress_AtomicAgainstConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New()

	cohort := domain.NewTreatmentCohort("batch-1", "", "swine fever", 100, nil)
	require.NoError(t, s.CreateCohort(ctx, cohort))

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.ApplyProgress(ctx, cohort.ID, domain.ProgressCured, 1); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, applied)
	got, err := s.GetCohort(ctx, cohort.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.CuredCount)
	assert.Equal(t, domain.CohortCured, got.Status)
	assert.LessOrEqual(t, got.CuredCount+got.DiedCount, got.InitialCount)
}

func TestDecrementStock_ConcurrentIssuers(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutMaterial(ctx, &domain.MaterialStock{
		MaterialID:   "amoxicillin",
		CurrentStock: 5,
		UnitPrice:    120,
	}))

	// Two issuers race for 3 units each against stock of 5: exactly one wins.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.DecrementStock(ctx, "amoxicillin", 3)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, unavailable int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case domain.IsResourceUnavailable(err):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)

	m, err := s.GetMaterial(ctx, "amoxicillin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.CurrentStock)
}

func TestDecrementStock_Boundaries(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutMaterial(ctx, &domain.MaterialStock{MaterialID: "m1", CurrentStock: 4}))

	before, after, err := s.DecrementStock(ctx, "m1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), before)
	assert.Equal(t, int64(0), after)

	_, _, err = s.DecrementStock(ctx, "m1", 1)
	assert.True(t, domain.IsResourceUnavailable(err))
}

func TestAccumulateDeath_MergesByTreatmentRef(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.AccumulateDeath(ctx, "batch-1", "cohort-1", "swine fever", 4, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(4), first.Count)
	assert.Equal(t, domain.Cents(600), first.TotalLoss)

	merged, err := s.AccumulateDeath(ctx, "batch-1", "cohort-1", "swine fever", 2, 150)
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID, "same cohort accumulates onto one record")
	assert.Equal(t, int64(6), merged.Count)
	assert.Equal(t, domain.Cents(900), merged.TotalLoss)
}

func TestMirrorCorrection_ToleratesMissingRecord(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.MirrorCorrection(ctx, "nonexistent", "swine fever"))

	_, err := s.AccumulateDeath(ctx, "b", "cohort-2", "unknown", 1, 100)
	require.NoError(t, err)
	require.NoError(t, s.MirrorCorrection(ctx, "cohort-2", "swine fever"))

	rec, err := s.GetDeathRecord(ctx, "cohort-2")
	require.NoError(t, err)
	assert.True(t, rec.IsCorrected)
	assert.Equal(t, "swine fever", rec.CorrectedCause)
}

func TestWindow_OrderingAndBound(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	examples := []domain.FewShotExample{
		{JobID: "a", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 4, CorrectedAt: base},
		{JobID: "b", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 5, CorrectedAt: base.Add(-time.Hour)},
		{JobID: "c", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 5, CorrectedAt: base.Add(time.Hour)},
		{JobID: "d", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 4, CorrectedAt: base.Add(2 * time.Hour)},
	}
	for _, ex := range examples {
		require.NoError(t, s.AdmitExample(ctx, ex))
	}

	window, err := s.Window(ctx, 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	// Rating desc first, recency desc within the same rating.
	assert.Equal(t, "c", window[0].JobID)
	assert.Equal(t, "b", window[1].JobID)
	assert.Equal(t, "d", window[2].JobID)
}

func TestWindow_NonPositiveN(t *testing.T) {
	ctx := context.Background()
	s := New()

	ex := domain.FewShotExample{JobID: "a", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 4, CorrectedAt: time.Now()}
	require.NoError(t, s.AdmitExample(ctx, ex))

	for _, n := range []int{0, -1} {
		window, err := s.Window(ctx, n)
		require.NoError(t, err)
		assert.Empty(t, window)
	}
}

func TestAdmitExample_ReplacesPerJob(t *testing.T) {
	ctx := context.Background()
	s := New()

	ex := domain.FewShotExample{JobID: "a", AIDiagnosis: "x", CorrectedCause: "y", AccuracyRating: 4, CorrectedAt: time.Now()}
	require.NoError(t, s.AdmitExample(ctx, ex))
	ex.AccuracyRating = 5
	require.NoError(t, s.AdmitExample(ctx, ex))

	window, err := s.Window(ctx, 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 5, window[0].AccuracyRating)
}

func TestHeadcountCounters(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutBatch(ctx, &domain.BatchHeadcount{
		BatchID:      "batch-1",
		CurrentCount: 50,
		SickCount:    1,
	}))

	require.NoError(t, s.AddDead(ctx, "batch-1", 3))
	require.NoError(t, s.AddSick(ctx, "batch-1", -5)) // clamps at zero

	b, err := s.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(47), b.CurrentCount)
	assert.Equal(t, int64(3), b.DeadCount)
	assert.Equal(t, int64(0), b.SickCount)
}
