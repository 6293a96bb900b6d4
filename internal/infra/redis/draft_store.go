package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"placement-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// DraftStore keeps the working answers of in-progress attempts in Redis so any instance can serve the
// attempt and a reconnecting client resumes where it left off.
// Drafts are stored as: HSET attempt:{attemptID}:drafts {questionID} <json draft>
type DraftStore struct {
	client *redis.Client
}

func NewDraftStore(client *redis.Client) *DraftStore {
	return &DraftStore{client: client}
}

// Seed writes only the questions without a draft (HSETNX). A positive ttl bounds the buffer's lifetime;
// zero leaves it until Clear.
func (s *DraftStore) Seed(ctx context.Context, attemptID string, drafts map[string]domain.Draft, ttl time.Duration) error {
	key := s.key(attemptID)
	pipe := s.client.TxPipeline()
	for questionID, d := range drafts {
		payload, err := json.Marshal(d)
		if err != nil {
			return err
		}
		pipe.HSetNX(ctx, key, questionID, payload)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed drafts: %w", err)
	}
	return nil
}

func (s *DraftStore) Save(ctx context.Context, attemptID, questionID string, draft domain.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(attemptID), questionID, payload).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *DraftStore) Load(ctx context.Context, attemptID string) (map[string]domain.Draft, error) {
	raw, err := s.client.HGetAll(ctx, s.key(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}
	out := make(map[string]domain.Draft, len(raw))
	for questionID, payload := range raw {
		var d domain.Draft
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("decode draft %s: %w", questionID, err)
		}
		out[questionID] = d
	}
	return out, nil
}

func (s *DraftStore) Clear(ctx context.Context, attemptID string) error {
	return s.client.Del(ctx, s.key(attemptID)).Err()
}

func (s *DraftStore) key(attemptID string) string {
	return "attempt:" + attemptID + ":drafts"
}
