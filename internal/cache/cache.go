package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// exportCounterTTL keeps yesterday's counter around across midnight
const exportCounterTTL = 48 * time.Hour

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Dataset Cache Operations

func datasetKey(datasetID, kind string) string {
	return fmt.Sprintf("dataset:%s:%s", datasetID, kind)
}

// SetDatasetStats caches the dashboard statistics of a dataset
func (c *Cache) SetDatasetStats(ctx context.Context, datasetID string, stats *models.DatasetStats, ttl time.Duration) error {
	return c.SetWithJSON(ctx, datasetKey(datasetID, "stats"), stats, ttl)
}

// GetDatasetStats retrieves cached statistics. A miss returns nil, nil.
func (c *Cache) GetDatasetStats(ctx context.Context, datasetID string) (*models.DatasetStats, error) {
	var stats models.DatasetStats
	found, err := c.GetWithJSON(ctx, datasetKey(datasetID, "stats"), &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

// SetCatalog caches the field ids available in a dataset
func (c *Cache) SetCatalog(ctx context.Context, datasetID string, fieldIDs []string, ttl time.Duration) error {
	return c.SetWithJSON(ctx, datasetKey(datasetID, "catalog"), fieldIDs, ttl)
}

// GetCatalog retrieves the cached field ids of a dataset
func (c *Cache) GetCatalog(ctx context.Context, datasetID string) ([]string, bool, error) {
	var ids []string
	found, err := c.GetWithJSON(ctx, datasetKey(datasetID, "catalog"), &ids)
	if err != nil || !found {
		return nil, false, err
	}
	return ids, true, nil
}

// InvalidateDataset drops everything cached for a dataset
func (c *Cache) InvalidateDataset(ctx context.Context, datasetID string) error {
	return c.DeletePattern(ctx, datasetKey(datasetID, "*"))
}

// Export Counters

func exportsTodayKey(userID string, now time.Time) string {
	return fmt.Sprintf("exports:%s:%s", userID, now.UTC().Format("20060102"))
}

// IncrementExportsToday bumps the user's export counter for the current day
func (c *Cache) IncrementExportsToday(ctx context.Context, userID string, now time.Time) (int64, error) {
	key := exportsTodayKey(userID, now)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, exportCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment export counter: %w", err)
	}
	return incr.Val(), nil
}

// ExportsToday returns the user's export count for the current day
func (c *Cache) ExportsToday(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := c.client.Get(ctx, exportsTodayKey(userID, now)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read export counter: %w", err)
	}
	return n, nil
}

// Rate Limiting Operations

// CheckRateLimit counts an attempt against key and reports whether it is
// still within limit for the window
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// ResetRateLimit clears the attempts recorded for key
func (c *Cache) ResetRateLimit(ctx context.Context, key string) error {
	return c.client.Del(ctx, fmt.Sprintf("ratelimit:%s", key)).Err()
}

// Locking Operations

// releaseScript deletes the lock only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock attempts to acquire a distributed lock. The returned token
// identifies the holder and must be passed to ReleaseLock.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (string, bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	token := uuid.New().String()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still holds it. A lock
// that expired and was taken by another holder is left alone.
func (c *Cache) ReleaseLock(ctx context.Context, resource, token string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return releaseScript.Run(ctx, c.client, []string{key}, token).Err()
}

// Batch Operations

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling and reports whether the key
// was found. A miss leaves dest untouched.
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
