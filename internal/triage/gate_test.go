package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelab/vettriage/internal/domain"
	"github.com/pasturelab/vettriage/internal/store/memstore"
)

type stubStarter struct {
	started []string
	err     error
}

func (s *stubStarter) StartDiagnosis(_ context.Context, jobID string) error {
	s.started = append(s.started, jobID)
	return s.err
}

func TestGateSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("validation table", func(t *testing.T) {
		tests := []struct {
			name    string
			subject domain.SubjectType
			inputs  domain.JobInputs
			wantErr bool
		}{
			{
				name:    "live with symptom tags",
				subject: domain.SubjectLive,
				inputs:  domain.JobInputs{Symptoms: []string{"咳嗽"}, AffectedCount: 3},
			},
			{
				name:    "live with description only",
				subject: domain.SubjectLive,
				inputs:  domain.JobInputs{Description: "lethargic, off feed", AffectedCount: 1},
			},
			{
				name:    "live without symptoms",
				subject: domain.SubjectLive,
				inputs:  domain.JobInputs{AffectedCount: 3},
				wantErr: true,
			},
			{
				name:    "live with zero affected count",
				subject: domain.SubjectLive,
				inputs:  domain.JobInputs{Symptoms: []string{"咳嗽"}},
				wantErr: true,
			},
			{
				name:    "autopsy with death count",
				subject: domain.SubjectAutopsy,
				inputs:  domain.JobInputs{DeathCount: 2},
			},
			{
				name:    "autopsy without death count",
				subject: domain.SubjectAutopsy,
				inputs:  domain.JobInputs{Description: "found dead"},
				wantErr: true,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				st := memstore.New()
				gate := NewGate(st, st, nil, nil)

				receipt, err := gate.Submit(ctx, SubmitRequest{
					SubmittedBy: "vet-1",
					SubjectType: tt.subject,
					Inputs:      tt.inputs,
				})
				if tt.wantErr {
					require.Error(t, err)
					assert.True(t, domain.IsValidation(err))
					return
				}
				require.NoError(t, err)
				assert.NotEmpty(t, receipt.JobID)
				assert.Equal(t, domain.StatusProcessing, receipt.Status)

				job, err := st.GetJob(ctx, receipt.JobID)
				require.NoError(t, err)
				assert.Equal(t, domain.StatusProcessing, job.Status)
			})
		}
	})

	t.Run("missing submitter rejected", func(t *testing.T) {
		st := memstore.New()
		gate := NewGate(st, st, nil, nil)

		_, err := gate.Submit(ctx, SubmitRequest{
			SubjectType: domain.SubjectLive,
			Inputs:      domain.JobInputs{Symptoms: []string{"咳嗽"}, AffectedCount: 1},
		})
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("triggers workflow for persisted job", func(t *testing.T) {
		st := memstore.New()
		starter := &stubStarter{}
		gate := NewGate(st, st, starter, nil)

		receipt, err := gate.Submit(ctx, SubmitRequest{
			SubmittedBy: "vet-1",
			SubjectType: domain.SubjectLive,
			Inputs:      domain.JobInputs{Symptoms: []string{"咳嗽"}, AffectedCount: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{receipt.JobID}, starter.started)
	})

	t.Run("trigger failure does not fail submission", func(t *testing.T) {
		st := memstore.New()
		starter := &stubStarter{err: errors.New("temporal unreachable")}
		gate := NewGate(st, st, starter, nil)

		receipt, err := gate.Submit(ctx, SubmitRequest{
			SubmittedBy: "vet-1",
			SubjectType: domain.SubjectLive,
			Inputs:      domain.JobInputs{Symptoms: []string{"腹泻"}, AffectedCount: 2},
		})
		require.NoError(t, err)

		// The durable job record is the only guarantee.
		job, err := st.GetJob(ctx, receipt.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, job.Status)
	})

	t.Run("snapshots the few-shot window into the job", func(t *testing.T) {
		st := memstore.New()
		require.NoError(t, st.AdmitExample(ctx, domain.FewShotExample{
			JobID:          "past-1",
			Symptoms:       []string{"咳嗽"},
			AIDiagnosis:    "pneumonia",
			CorrectedCause: "respiratory infection",
			AccuracyRating: 5,
			CorrectedAt:    time.Now().UTC(),
		}))
		gate := NewGate(st, st, nil, nil)

		receipt, err := gate.Submit(ctx, SubmitRequest{
			SubmittedBy: "vet-1",
			SubjectType: domain.SubjectLive,
			Inputs:      domain.JobInputs{Symptoms: []string{"咳嗽"}, AffectedCount: 4},
		})
		require.NoError(t, err)

		job, err := st.GetJob(ctx, receipt.JobID)
		require.NoError(t, err)
		require.Len(t, job.Inputs.Context, 1)
		assert.Equal(t, "past-1", job.Inputs.Context[0].JobID)
	})
}
