package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/privacy"
)

// Config contains Redis statistics configuration
type Config struct {
	RedisURL  string
	KeyPrefix string
	Timeout   time.Duration
}

// RedisStore keeps counters in Redis so several instances share totals
type RedisStore struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(config *Config, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.Timeout > 0 {
		opts.ReadTimeout = config.Timeout
		opts.WriteTimeout = config.Timeout
	}

	store := &RedisStore{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.client.Ping(ctx).Result(); err != nil {
		store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection stats store initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.String("key_prefix", config.KeyPrefix))

	return store, nil
}

// Record adds one request and its per-type counts in a single round trip
func (rs *RedisStore) Record(ctx context.Context, counts map[privacy.PIIType]int) error {
	pipe := rs.client.TxPipeline()

	pipe.Incr(ctx, rs.requestsKey())
	var items int64
	for piiType, n := range counts {
		if n <= 0 {
			continue
		}
		pipe.HIncrBy(ctx, rs.typesKey(), string(piiType), int64(n))
		items += int64(n)
	}
	if items > 0 {
		pipe.IncrBy(ctx, rs.itemsKey(), items)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		rs.logger.Warn("Failed to record detection stats", zap.Error(err))
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

// Totals reads the shared counters
func (rs *RedisStore) Totals(ctx context.Context) (*Totals, error) {
	pipe := rs.client.Pipeline()
	requests := pipe.Get(ctx, rs.requestsKey())
	items := pipe.Get(ctx, rs.itemsKey())
	byType := pipe.HGetAll(ctx, rs.typesKey())

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	totals := newTotals()
	totals.Requests = parseCounter(requests.Val())
	totals.Items = parseCounter(items.Val())
	for k, v := range byType.Val() {
		totals.ByType[k] = parseCounter(v)
	}
	return totals, nil
}

// Reset deletes all counters under the configured prefix
func (rs *RedisStore) Reset(ctx context.Context) error {
	return rs.client.Del(ctx, rs.requestsKey(), rs.itemsKey(), rs.typesKey()).Err()
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) requestsKey() string { return rs.key("requests") }
func (rs *RedisStore) itemsKey() string    { return rs.key("items") }
func (rs *RedisStore) typesKey() string    { return rs.key("types") }

func (rs *RedisStore) key(name string) string {
	prefix := strings.TrimSuffix(rs.config.KeyPrefix, ":")
	if prefix == "" {
		prefix = "datacloak"
	}
	return prefix + ":stats:" + name
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			return "redis://***@" + parts[len(parts)-1]
		}
	}
	return url
}
