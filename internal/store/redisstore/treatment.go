package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
)

func timeNow() time.Time { return time.Now().UTC() }

// progressScript applies one progress update with the cohort state machine's
// exact semantics in a single atomic step: guard on status, range-check the
// count against the remaining headcount, increment the matching counter, and
// perform the terminal transition when the last animal is resolved.
//
// KEYS[1] = cohort hash
// ARGV[1] = kind ("cured"|"died")
// ARGV[2] = count
//
// Returns {1, newStatus, remaining, cured, died} on success,
// {0, status} on state conflict, {-2, remaining} on range violation,
// {-1} when the cohort is missing.
const progressScript = `
	local status = redis.call('HGET', KEYS[1], 'status')
	if not status then return {-1} end
	if status ~= 'ongoing' then return {0, status} end

	local initial = tonumber(redis.call('HGET', KEYS[1], 'initial'))
	local cured = tonumber(redis.call('HGET', KEYS[1], 'cured'))
	local died = tonumber(redis.call('HGET', KEYS[1], 'died'))
	local count = tonumber(ARGV[2])
	local remaining = initial - cured - died

	if count <= 0 or count > remaining then return {-2, remaining} end

	if ARGV[1] == 'cured' then
		cured = redis.call('HINCRBY', KEYS[1], 'cured', count)
	else
		died = redis.call('HINCRBY', KEYS[1], 'died', count)
	end

	remaining = initial - cured - died
	local newstatus = 'ongoing'
	if remaining == 0 then
		if died == 0 then
			newstatus = 'cured'
		elseif cured == 0 then
			newstatus = 'died'
		else
			newstatus = 'completed'
		end
		redis.call('HSET', KEYS[1], 'status', newstatus)
	end
	return {1, newstatus, remaining, cured, died}
`

// accumulateDeathScript creates the cohort's death record on first use and
// accumulates onto it afterwards. The count and total loss only grow.
//
// KEYS[1] = death hash (keyed by treatment ref)
// ARGV = {id, batchRef, treatmentRef, cause, count, unitCost, now}
//
// Returns {1, count, totalLoss} on create, {0, count, totalLoss} on merge.
const accumulateDeathScript = `
	local count = tonumber(ARGV[5])
	local unit = tonumber(ARGV[6])
	if redis.call('EXISTS', KEYS[1]) == 0 then
		redis.call('HSET', KEYS[1],
			'id', ARGV[1], 'batch', ARGV[2], 'treatment', ARGV[3],
			'cause', ARGV[4], 'count', count, 'unit_cost', unit,
			'total_loss', count * unit,
			'created_at', ARGV[7], 'updated_at', ARGV[7],
			'is_corrected', '0', 'corrected_cause', '')
		return {1, count, count * unit}
	end
	local total = redis.call('HINCRBY', KEYS[1], 'count', count)
	local loss = redis.call('HINCRBY', KEYS[1], 'total_loss', count * unit)
	redis.call('HSET', KEYS[1], 'unit_cost', unit, 'updated_at', ARGV[7])
	return {0, total, loss}
`

// CreateCohort persists a new cohort: the static document under 'doc',
// counters and status as plain hash fields so they can be incremented
// atomically.
func (s *Store) CreateCohort(ctx context.Context, c *domain.TreatmentCohort) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cohort: %w", err)
	}
	err = s.client.HSet(ctx, cohortKey(c.ID),
		"doc", string(doc),
		"status", string(c.Status),
		"initial", c.InitialCount,
		"cured", c.CuredCount,
		"died", c.DiedCount,
		"med_cost", int64(c.MedicationCost),
		"total_cost", int64(c.TotalCost),
		"cured_cost", int64(c.CuredCost),
	).Err()
	if err != nil {
		return fmt.Errorf("create cohort %s: %w", c.ID, err)
	}
	return nil
}

// GetCohort reassembles the cohort from the static document and the live
// counter fields.
func (s *Store) GetCohort(ctx context.Context, id string) (*domain.TreatmentCohort, error) {
	fields, err := s.client.HGetAll(ctx, cohortKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cohort %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrCohortNotFound
	}
	return cohortFromFields(id, fields)
}

func cohortFromFields(id string, fields map[string]string) (*domain.TreatmentCohort, error) {
	var c domain.TreatmentCohort
	if err := json.Unmarshal([]byte(fields["doc"]), &c); err != nil {
		return nil, fmt.Errorf("decode cohort %s: %w", id, err)
	}
	c.Status = domain.CohortStatus(fields["status"])

	var err error
	if c.InitialCount, err = parseInt(fields, "initial"); err != nil {
		return nil, err
	}
	if c.CuredCount, err = parseInt(fields, "cured"); err != nil {
		return nil, err
	}
	if c.DiedCount, err = parseInt(fields, "died"); err != nil {
		return nil, err
	}
	med, err := parseInt(fields, "med_cost")
	if err != nil {
		return nil, err
	}
	total, err := parseInt(fields, "total_cost")
	if err != nil {
		return nil, err
	}
	cured, err := parseInt(fields, "cured_cost")
	if err != nil {
		return nil, err
	}
	c.MedicationCost = domain.Cents(med)
	c.TotalCost = domain.Cents(total)
	c.CuredCost = domain.Cents(cured)
	return &c, nil
}

// ApplyProgress runs the guarded progress script and maps its result codes
// onto the domain error taxonomy.
func (s *Store) ApplyProgress(ctx context.Context, id string, kind domain.ProgressKind, count int64) (domain.ProgressOutcome, *domain.TreatmentCohort, error) {
	raw, err := s.client.Eval(ctx, progressScript,
		[]string{cohortKey(id)},
		string(kind), count,
	).Result()
	if err != nil {
		return domain.ProgressOutcome{}, nil, fmt.Errorf("apply progress %s: %w", id, err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return domain.ProgressOutcome{}, nil, fmt.Errorf("apply progress %s: unexpected reply %v", id, raw)
	}

	code, _ := reply[0].(int64)
	switch code {
	case 1:
		newStatus, _ := reply[1].(string)
		remaining, _ := reply[2].(int64)
		out := domain.ProgressOutcome{
			Kind:      kind,
			Count:     count,
			NewStatus: domain.CohortStatus(newStatus),
			Terminal:  domain.CohortStatus(newStatus).IsTerminal(),
			Remaining: remaining,
		}
		cohort, err := s.GetCohort(ctx, id)
		if err != nil {
			return domain.ProgressOutcome{}, nil, err
		}
		return out, cohort, nil
	case 0:
		state, _ := reply[1].(string)
		return domain.ProgressOutcome{}, nil, &domain.StateConflictError{
			Entity:    "treatment cohort",
			ID:        id,
			State:     state,
			Operation: "record progress",
		}
	case -2:
		remaining, _ := reply[1].(int64)
		return domain.ProgressOutcome{}, nil, &domain.RangeError{
			Field: "count",
			Value: count,
			Min:   1,
			Max:   remaining,
		}
	default:
		return domain.ProgressOutcome{}, nil, domain.ErrCohortNotFound
	}
}

// AddCohortCost accumulates cost counters with HINCRBY.
func (s *Store) AddCohortCost(ctx context.Context, id string, medication, total domain.Cents) error {
	if err := s.requireCohort(ctx, id); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, cohortKey(id), "med_cost", int64(medication))
	pipe.HIncrBy(ctx, cohortKey(id), "total_cost", int64(total))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add cohort cost %s: %w", id, err)
	}
	return nil
}

// AddCuredCost accumulates the cured-outcome bookkeeping figure.
func (s *Store) AddCuredCost(ctx context.Context, id string, amount domain.Cents) error {
	if err := s.requireCohort(ctx, id); err != nil {
		return err
	}
	if err := s.client.HIncrBy(ctx, cohortKey(id), "cured_cost", int64(amount)).Err(); err != nil {
		return fmt.Errorf("add cured cost %s: %w", id, err)
	}
	return nil
}

func (s *Store) requireCohort(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, cohortKey(id)).Result()
	if err != nil {
		return fmt.Errorf("cohort %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrCohortNotFound
	}
	return nil
}

// AccumulateDeath runs the create-or-merge script for the cohort's death
// record and returns the record as observed after the write.
func (s *Store) AccumulateDeath(ctx context.Context, batchRef, treatmentRef, cause string, count int64, unitCost domain.Cents) (*domain.DeathRecord, error) {
	id := newID()
	_, err := s.client.Eval(ctx, accumulateDeathScript,
		[]string{deathKey(treatmentRef)},
		id, batchRef, treatmentRef, cause, count, int64(unitCost), formatTime(timeNow()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("accumulate death %s: %w", treatmentRef, err)
	}
	return s.GetDeathRecord(ctx, treatmentRef)
}

// GetDeathRecord reads the record for a treatment cohort.
func (s *Store) GetDeathRecord(ctx context.Context, treatmentRef string) (*domain.DeathRecord, error) {
	fields, err := s.client.HGetAll(ctx, deathKey(treatmentRef)).Result()
	if err != nil {
		return nil, fmt.Errorf("get death record %s: %w", treatmentRef, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrDeathRecordNotFound
	}

	rec := &domain.DeathRecord{
		ID:             fields["id"],
		BatchRef:       fields["batch"],
		TreatmentRef:   fields["treatment"],
		Cause:          fields["cause"],
		IsCorrected:    fields["is_corrected"] == "1",
		CorrectedCause: fields["corrected_cause"],
		CreatedAt:      parseTime(fields, "created_at"),
		UpdatedAt:      parseTime(fields, "updated_at"),
	}
	if rec.Count, err = parseInt(fields, "count"); err != nil {
		return nil, err
	}
	unit, err := parseInt(fields, "unit_cost")
	if err != nil {
		return nil, err
	}
	loss, err := parseInt(fields, "total_loss")
	if err != nil {
		return nil, err
	}
	rec.UnitCost = domain.Cents(unit)
	rec.TotalLoss = domain.Cents(loss)
	return rec, nil
}

// MirrorCorrection upserts the correction mirror; a missing record is not
// an error.
func (s *Store) MirrorCorrection(ctx context.Context, treatmentRef, correctedCause string) error {
	n, err := s.client.Exists(ctx, deathKey(treatmentRef)).Result()
	if err != nil {
		return fmt.Errorf("mirror correction %s: %w", treatmentRef, err)
	}
	if n == 0 {
		return nil
	}
	return s.client.HSet(ctx, deathKey(treatmentRef),
		"is_corrected", "1",
		"corrected_cause", correctedCause,
		"updated_at", formatTime(timeNow()),
	).Err()
}
