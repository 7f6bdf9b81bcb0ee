package sessioncache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/redis"
)

// RedisCache is the redis-backed Cache for multi-instance deployments.
// TTL eviction is delegated to redis key expiry.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    ectologger.Logger
}

// NewRedisCache creates a redis-backed session cache.
func NewRedisCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger ectologger.Logger) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "trellis:reconciliation:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *RedisCache) key(tenantID, handle string) string {
	return c.keyPrefix + tenantID + ":" + handle
}

// Put stores the run under a new handle with redis-managed expiry.
func (c *RedisCache) Put(ctx context.Context, tenantID string, run *models.MatchRun) (string, error) {
	handle := NewHandle()

	entry := &Entry{
		Handle:    handle,
		TenantID:  tenantID,
		Run:       run,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, c.key(tenantID, handle), payload, c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "handle": handle}).Error("Failed to store reconciliation result")
		return "", err
	}

	return handle, nil
}

// Get returns the entry for a handle, or nil when unknown or expired.
func (c *RedisCache) Get(ctx context.Context, tenantID, handle string) (*Entry, error) {
	payload, err := c.client.Get(ctx, c.key(tenantID, handle))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "handle": handle}).Error("Failed to read reconciliation result")
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "handle": handle}).Error("Failed to decode cached reconciliation result")
		return nil, nil
	}
	return &entry, nil
}

// Delete removes the entry for a handle.
func (c *RedisCache) Delete(ctx context.Context, tenantID, handle string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.key(tenantID, handle))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := c.client.Del(ctx, c.key(tenantID, handle)); err != nil {
		return false, err
	}
	return true, nil
}
