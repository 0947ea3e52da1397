package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"bookrag/internal/domain"
)

// JobStore records the progress events of asynchronous ingestion jobs.
// The last event answers status requests; the full list is kept for replay.
type JobStore struct {
	client redisv9.Cmdable
	ttl    time.Duration
}

func NewJobStore(client redisv9.Cmdable, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobStore{client: client, ttl: ttl}
}

func (s *JobStore) Record(ctx context.Context, jobID string, ev domain.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event failed: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(jobID), payload, s.ttl)
	pipe.RPush(ctx, jobEventsKey(jobID), payload)
	pipe.Expire(ctx, jobEventsKey(jobID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record job event failed: %w", err)
	}
	return nil
}

// Last returns the most recent event of a job; ok is false for unknown or
// expired jobs.
func (s *JobStore) Last(ctx context.Context, jobID string) (domain.ProgressEvent, bool, error) {
	raw, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redisv9.Nil {
		return domain.ProgressEvent{}, false, nil
	}
	if err != nil {
		return domain.ProgressEvent{}, false, fmt.Errorf("redis get job failed: %w", err)
	}
	ev, err := decodeEvent(raw)
	if err != nil {
		return domain.ProgressEvent{}, false, err
	}
	return ev, true, nil
}

func (s *JobStore) Events(ctx context.Context, jobID string) ([]domain.ProgressEvent, error) {
	raws, err := s.client.LRange(ctx, jobEventsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list job events failed: %w", err)
	}
	events := make([]domain.ProgressEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := decodeEvent([]byte(raw))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeEvent(raw []byte) (domain.ProgressEvent, error) {
	var ev domain.ProgressEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.ProgressEvent{}, fmt.Errorf("unmarshal job event failed: %w", err)
	}
	return ev, nil
}

func jobKey(id string) string {
	return fmt.Sprintf("bookrag:ingest:job:%s", id)
}

func jobEventsKey(id string) string {
	return fmt.Sprintf("bookrag:ingest:job:%s:events", id)
}
