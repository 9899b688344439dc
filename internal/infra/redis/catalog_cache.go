package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
)

// CatalogCache is a read-through cache over a catalog loader. Stages are
// immutable, so caching is a pure optimization: a serialized question set per
// stage, with jittered TTLs to spread expirations and singleflight to stop
// cache-miss stampedes.
type CatalogCache struct {
	client *redis.Client
	loader catalog.Loader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader catalog.Loader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var _ catalog.Repository = (*CatalogCache)(nil)

func (c *CatalogCache) GetStage(ctx context.Context, stage int64) (*catalog.Stage, error) {
	key := c.key(stage)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return catalog.NewStage(stage, questions)
		}
		// Corrupt entry; fall through to reload and overwrite it.
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.loader.LoadStage(ctx, stage)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return catalog.NewStage(stage, result.([]domain.Question))
}

func (c *CatalogCache) key(stage int64) string {
	return "catalog:stage:" + strconv.FormatInt(stage, 10)
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
