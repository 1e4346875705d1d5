// Package cache stores finished extraction results in redis so identical
// requests skip the pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

const keyPrefix = "extraction_result:"

// ResultCache is a read-through cache of extraction results.
type ResultCache interface {
	Get(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, bool)
	Set(ctx context.Context, req *models.ExtractionRequest, result *models.ExtractionResult) error
}

// RedisCache keeps results for ttl. A zero ttl disables it.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, log logger.Logger) *RedisCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: log.Named("cache")}
}

func (c *RedisCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get never fails: a redis error is logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, bool) {
	if !c.enabled() {
		return nil, false
	}
	key, err := Key(req)
	if err != nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache lookup failed", logger.String("key", key), logger.Error(err))
		}
		return nil, false
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Dropping unreadable cache entry", logger.String("key", key), logger.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}
	result.Cached = true
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, req *models.ExtractionRequest, result *models.ExtractionResult) error {
	if !c.enabled() {
		return nil
	}
	key, err := Key(req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

type keyMaterial struct {
	Label   string         `json:"label"`
	Schema  [][2]string    `json:"schema"`
	Text    string         `json:"text"`
	Options models.Options `json:"options"`
}

// Key hashes everything that influences the result.
func Key(req *models.ExtractionRequest) (string, error) {
	fields := make([][2]string, 0, len(req.Schema))
	for name, desc := range req.Schema {
		fields = append(fields, [2]string{name, desc})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i][0] < fields[j][0] })

	opts := req.Options
	opts.EnableCaching = false
	data, err := json.Marshal(keyMaterial{Label: req.Label, Schema: fields, Text: req.Text, Options: opts})
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}
