package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"placement-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches an assessment's questions from the backing store.
type QuestionLoader interface {
	Questions(ctx context.Context, assessmentID string) ([]domain.Question, error)
}

// QuestionCache caches question sets with TTL to avoid repeated store hits while attempts run.
// Question sets are immutable once an assessment leaves draft.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, assessmentID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(assessmentID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(assessmentID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if qs, ok := c.lookup(assessmentID); ok {
			return qs, nil
		}
		qs, err := c.loader.Questions(ctx, assessmentID)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return qs, nil
		}
		c.mu.Lock()
		c.cache[assessmentID] = cachedQuestions{questions: qs, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

func (c *QuestionCache) lookup(assessmentID string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[assessmentID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return cloneQuestions(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	copy(out, in)
	return out
}
