package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pasturelab/vettriage/internal/domain"
)

// completeJobScript applies the terminal write only while the job is still
// processing. The first completion wins; later invocations return 0 without
// touching the stored result, so duplicate worker runs leave the document
// byte-identical.
//
// KEYS[1] = job hash
// ARGV[1] = terminal status
// ARGV[2] = result JSON ("" for failures)
// ARGV[3] = error string ("" for completions)
// ARGV[4] = completion timestamp (RFC3339Nano)
//
// Returns 1 applied, 0 already terminal, -1 missing.
const completeJobScript = `
	local status = redis.call('HGET', KEYS[1], 'status')
	if not status then return -1 end
	if status ~= 'processing' then return 0 end
	redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[4])
	if ARGV[2] ~= '' then
		redis.call('HSET', KEYS[1], 'result', ARGV[2])
	end
	if ARGV[3] ~= '' then
		redis.call('HSET', KEYS[1], 'error', ARGV[3])
	end
	return 1
`

// CreateJob persists a new processing job. The immutable submission document
// is stored whole under 'doc'; mutable lifecycle fields live beside it so
// later writes never rewrite the original inputs.
func (s *Store) CreateJob(ctx context.Context, job *domain.DiagnosisJob) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = s.client.HSet(ctx, jobKey(job.ID),
		"doc", string(doc),
		"status", string(job.Status),
	).Err()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob reassembles the job document: the creation snapshot overlaid with
// the mutable lifecycle fields.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.DiagnosisJob, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}

	var job domain.DiagnosisJob
	if err := json.Unmarshal([]byte(fields["doc"]), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}

	if status, ok := fields["status"]; ok {
		job.Status = domain.JobStatus(status)
	}
	if raw, ok := fields["result"]; ok && raw != "" {
		var result domain.DiagnosisResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("decode job %s result: %w", id, err)
		}
		job.Result = &result
	}
	if msg, ok := fields["error"]; ok {
		job.Error = msg
	}
	if raw, ok := fields["correction"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Correction); err != nil {
			return nil, fmt.Errorf("decode job %s correction: %w", id, err)
		}
	}
	if fields["has_treatment"] == "1" {
		job.HasTreatment = true
	}
	if ref, ok := fields["treatment_ref"]; ok && ref != "" {
		job.TreatmentRef = ref
	}
	job.CompletedAt = parseTime(fields, "completed_at")

	return &job, nil
}

// CompleteJob runs the guarded terminal write.
func (s *Store) CompleteJob(ctx context.Context, id string, completion domain.JobCompletion) (bool, error) {
	var resultJSON string
	if completion.Result != nil {
		raw, err := json.Marshal(completion.Result)
		if err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = string(raw)
	}

	res, err := s.client.Eval(ctx, completeJobScript,
		[]string{jobKey(id)},
		string(completion.Status()), resultJSON, completion.Error, formatTime(timeNow()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, domain.ErrJobNotFound
	}
}

// MarkJobTreated archives the job after adoption into a treatment cohort.
func (s *Store) MarkJobTreated(ctx context.Context, id, cohortID string) error {
	n, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("mark job %s treated: %w", id, err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return s.client.HSet(ctx, jobKey(id),
		"has_treatment", "1",
		"treatment_ref", cohortID,
	).Err()
}

// SaveCorrection persists the correction block onto the job.
func (s *Store) SaveCorrection(ctx context.Context, id string, cor domain.Correction) error {
	n, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("save correction %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	raw, err := json.Marshal(cor)
	if err != nil {
		return fmt.Errorf("marshal correction: %w", err)
	}
	return s.client.HSet(ctx, jobKey(id), "correction", string(raw)).Err()
}
