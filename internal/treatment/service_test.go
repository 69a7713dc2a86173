package treatment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store/memstore"
)

func completedJob(t *testing.T, st *memstore.Store, batchRef string) *domain.DiagnosisJob {
	t.Helper()
	ctx := context.Background()

	job := domain.NewDiagnosisJob("vet-1", domain.SubjectLive, batchRef, domain.JobInputs{
		Symptoms:      []string{"咳嗽"},
		AffectedCount: 10,
	})
	require.NoError(t, st.CreateJob(ctx, job))

	applied, err := st.CompleteJob(ctx, job.ID, domain.JobCompletion{Result: &domain.DiagnosisResult{
		SchemaVersion: domain.ResultSchemaVersion,
		Tier:          domain.TierStructured,
		Primary:       domain.Finding{Disease: "respiratory infection", Confidence: 80},
		Severity:      domain.SeverityModerate,
		Urgency:       domain.UrgencyUrgent,
		Treatment: domain.TreatmentAdvice{
			Plan:        "antibiotic course",
			Medications: []domain.MedicationLine{{MaterialID: "med-1", Name: "oxytetracycline", Quantity: 10, DurationDays: 5}},
		},
	}})
	require.NoError(t, err)
	require.True(t, applied)

	job, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	return job
}

func TestStartTreatment(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts a completed job", func(t *testing.T) {
		st := memstore.New()
		job := completedJob(t, st, "batch-1")
		svc := NewService(st, nil)

		cohort, err := svc.StartTreatment(ctx, StartRequest{
			BatchRef:     "batch-1",
			JobRef:       job.ID,
			InitialCount: 10,
		})
		require.NoError(t, err)

		assert.Equal(t, domain.CohortOngoing, cohort.Status)
		assert.Equal(t, "respiratory infection", cohort.Cause)
		require.Len(t, cohort.Medications, 1)
		assert.Equal(t, "med-1", cohort.Medications[0].MaterialID)

		archived, err := st.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, archived.HasTreatment)
		assert.Equal(t, cohort.ID, archived.TreatmentRef)
	})

	t.Run("works without a job link", func(t *testing.T) {
		st := memstore.New()
		svc := NewService(st, nil)

		cohort, err := svc.StartTreatment(ctx, StartRequest{
			BatchRef:     "batch-1",
			Cause:        "gastroenteritis",
			InitialCount: 4,
		})
		require.NoError(t, err)
		assert.Empty(t, cohort.DiagnosisJobRef)
		assert.Equal(t, "gastroenteritis", cohort.Cause)
	})

	t.Run("rejects a processing job", func(t *testing.T) {
		st := memstore.New()
		job := domain.NewDiagnosisJob("vet-1", domain.SubjectLive, "batch-1", domain.JobInputs{
			Symptoms: []string{"咳嗽"}, AffectedCount: 5,
		})
		require.NoError(t, st.CreateJob(ctx, job))

		_, err := NewService(st, nil).StartTreatment(ctx, StartRequest{
			BatchRef: "batch-1", JobRef: job.ID, InitialCount: 5,
		})
		assert.True(t, domain.IsStateConflict(err))
	})

	t.Run("input validation", func(t *testing.T) {
		svc := NewService(memstore.New(), nil)

		_, err := svc.StartTreatment(ctx, StartRequest{InitialCount: 5})
		assert.True(t, domain.IsValidation(err))

		_, err = svc.StartTreatment(ctx, StartRequest{BatchRef: "batch-1"})
		assert.True(t, domain.IsValidation(err))
	})
}

func startCohort(t *testing.T, st *memstore.Store, initial int64) *domain.TreatmentCohort {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.PutBatch(ctx, &domain.BatchHeadcount{
		BatchID:        "batch-1",
		CurrentCount:   100,
		SickCount:      initial,
		EntryUnitPrice: 5000,
	}))

	cohort, err := NewService(st, nil).StartTreatment(ctx, StartRequest{
		BatchRef:     "batch-1",
		Cause:        "respiratory infection",
		InitialCount: initial,
	})
	require.NoError(t, err)
	return cohort
}

func TestRecordProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed outcome resolves to completed", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		svc := NewService(st, nil)

		out, err := svc.RecordProgress(ctx, cohort.ID, domain.ProgressCured, 6)
		require.NoError(t, err)
		assert.False(t, out.Terminal)
		assert.Equal(t, domain.CohortOngoing, out.NewStatus)
		assert.EqualValues(t, 4, out.Remaining)

		out, err = svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 4)
		require.NoError(t, err)
		assert.True(t, out.Terminal)
		assert.Equal(t, domain.CohortCompleted, out.NewStatus)
		assert.EqualValues(t, 0, out.Remaining)

		final, err := st.GetCohort(ctx, cohort.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 6, final.CuredCount)
		assert.EqualValues(t, 4, final.DiedCount)

		record, err := st.GetDeathRecord(ctx, cohort.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 4, record.Count)
		assert.Equal(t, "respiratory infection", record.Cause)
	})

	t.Run("terminal cohort rejects further progress", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		svc := NewService(st, nil)

		_, err := svc.RecordProgress(ctx, cohort.ID, domain.ProgressCured, 6)
		require.NoError(t, err)
		_, err = svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 4)
		require.NoError(t, err)

		_, err = svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 1)
		assert.True(t, domain.IsStateConflict(err))

		// The death record did not move.
		record, err := st.GetDeathRecord(ctx, cohort.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 4, record.Count)
	})

	t.Run("all cured resolves to cured", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 5)

		out, err := NewService(st, nil).RecordProgress(ctx, cohort.ID, domain.ProgressCured, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.CohortCured, out.NewStatus)

		// No deaths, no death record.
		_, err = st.GetDeathRecord(ctx, cohort.ID)
		assert.ErrorIs(t, err, domain.ErrDeathRecordNotFound)
	})

	t.Run("all died resolves to died", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 5)

		out, err := NewService(st, nil).RecordProgress(ctx, cohort.ID, domain.ProgressDied, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.CohortDied, out.NewStatus)
	})

	t.Run("count above remaining rejected with range error", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		svc := NewService(st, nil)

		_, err := svc.RecordProgress(ctx, cohort.ID, domain.ProgressCured, 3)
		require.NoError(t, err)

		_, err = svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 8)
		assert.True(t, domain.IsRange(err))
	})

	t.Run("deaths accumulate onto one record", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		svc := NewService(st, nil)

		_, err := svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 2)
		require.NoError(t, err)
		_, err = svc.RecordProgress(ctx, cohort.ID, domain.ProgressDied, 3)
		require.NoError(t, err)

		record, err := st.GetDeathRecord(ctx, cohort.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 5, record.Count)
		// Entry unit price fallback: no medication cost accrued yet.
		assert.EqualValues(t, 5000, record.UnitCost)
		assert.EqualValues(t, 25000, record.TotalLoss)
	})

	t.Run("died update bumps batch dead count", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)

		_, err := NewService(st, nil).RecordProgress(ctx, cohort.ID, domain.ProgressDied, 3)
		require.NoError(t, err)

		batch, err := st.GetBatch(ctx, "batch-1")
		require.NoError(t, err)
		assert.EqualValues(t, 3, batch.DeadCount)
		assert.EqualValues(t, 97, batch.CurrentCount)
	})

	t.Run("cured update books cost and shrinks sick count", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		require.NoError(t, st.AddCohortCost(ctx, cohort.ID, 20000, 30000))

		_, err := NewService(st, nil).RecordProgress(ctx, cohort.ID, domain.ProgressCured, 4)
		require.NoError(t, err)

		final, err := st.GetCohort(ctx, cohort.ID)
		require.NoError(t, err)
		// 30000 total / 10 head = 3000 per head, times 4 cured.
		assert.EqualValues(t, 12000, final.CuredCost)

		batch, err := st.GetBatch(ctx, "batch-1")
		require.NoError(t, err)
		assert.EqualValues(t, 6, batch.SickCount)
	})

	t.Run("accrued cost takes precedence over entry price", func(t *testing.T) {
		st := memstore.New()
		cohort := startCohort(t, st, 10)
		require.NoError(t, st.AddCohortCost(ctx, cohort.ID, 10000, 10000))

		_, err := NewService(st, nil).RecordProgress(ctx, cohort.ID, domain.ProgressDied, 2)
		require.NoError(t, err)

		record, err := st.GetDeathRecord(ctx, cohort.ID)
		require.NoError(t, err)
		// 10000 / 10 head = 1000 per head.
		assert.EqualValues(t, 1000, record.UnitCost)
		assert.EqualValues(t, 2000, record.TotalLoss)
	})
}
