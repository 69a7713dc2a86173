package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pasturelab/vettriage/internal/domain"
)

// admitExampleScript stores the example document, ranks it, and evicts the
// lowest-ranked entries beyond the pool capacity, all in one step so the
// rank set and the document hash cannot drift apart.
//
// KEYS[1] = rank zset, KEYS[2] = document hash
// ARGV[1] = job id, ARGV[2] = example JSON, ARGV[3] = score, ARGV[4] = capacity
const admitExampleScript = `
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
	local over = redis.call('ZCARD', KEYS[1]) - tonumber(ARGV[4])
	if over > 0 then
		local victims = redis.call('ZRANGE', KEYS[1], 0, over - 1)
		for _, v in ipairs(victims) do
			redis.call('ZREM', KEYS[1], v)
			redis.call('HDEL', KEYS[2], v)
		end
	end
	return 1
`

// exampleScore ranks by rating first, recency second. Ratings are single
// digits, so shifting the rating far above any Unix-second timestamp keeps
// the ordering strict.
func exampleScore(ex domain.FewShotExample) float64 {
	const ratingWeight = 1 << 40
	return float64(int64(ex.AccuracyRating)*ratingWeight + ex.CorrectedAt.Unix())
}

// AdmitExample adds or replaces the job's entry in the candidate pool.
func (s *Store) AdmitExample(ctx context.Context, ex domain.FewShotExample) error {
	raw, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal example: %w", err)
	}
	err = s.client.Eval(ctx, admitExampleScript,
		[]string{fewShotRankKey, fewShotDocKey},
		ex.JobID, string(raw), exampleScore(ex), s.windowCapacity,
	).Err()
	if err != nil {
		return fmt.Errorf("admit example %s: %w", ex.JobID, err)
	}
	return nil
}

// Window returns up to n examples ordered by rating desc, then recency desc.
func (s *Store) Window(ctx context.Context, n int) ([]domain.FewShotExample, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.client.ZRevRange(ctx, fewShotRankKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read few-shot window: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.client.HMGet(ctx, fewShotDocKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read few-shot docs: %w", err)
	}
	out := make([]domain.FewShotExample, 0, len(docs))
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue // rank/doc drift: skip rather than fail the window
		}
		var ex domain.FewShotExample
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			return nil, fmt.Errorf("decode example: %w", err)
		}
		out = append(out, ex)
	}
	return out, nil
}
