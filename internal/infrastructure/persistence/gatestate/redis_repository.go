package gatestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AtRiskMedia/drillgate/internal/domain/gate"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/security"
)

const redisKeyPrefix = "drillgate:state:"

// RedisRepository stores each record as a string value keyed by the digest of
// its identity key. Idle expiry is delegated to Redis via the key TTL, so it
// does not implement gate.Purger.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.ChanneledLogger
}

// NewRedisClient builds a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisRepository wraps client. ttl of zero keeps records forever; a
// positive ttl is refreshed on every save.
func NewRedisRepository(client *redis.Client, ttl time.Duration, logger *logging.ChanneledLogger) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl, logger: logger}
}

// Ping checks connectivity.
func (r *RedisRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func redisKey(identityKey string) string {
	return redisKeyPrefix + security.IdentityDigest(identityKey)
}

// Load retrieves the record for key. A missing key returns (nil, nil).
func (r *RedisRepository) Load(ctx context.Context, key string) (*gate.SessionState, error) {
	start := time.Now()
	payload, err := r.client.Get(ctx, redisKey(key)).Bytes()
	database.CheckAndLogSlowQuery(r.logger, "GET "+redisKeyPrefix, time.Since(start), key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load gate state from redis", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return nil, fmt.Errorf("load gate state: %w", err)
	}
	return gate.DecodeState(payload)
}

// Save writes the record for key, refreshing its TTL.
func (r *RedisRepository) Save(ctx context.Context, key string, state *gate.SessionState) error {
	payload, err := gate.EncodeState(state)
	if err != nil {
		return err
	}

	start := time.Now()
	err = r.client.Set(ctx, redisKey(key), payload, r.ttl).Err()
	database.CheckAndLogSlowQuery(r.logger, "SET "+redisKeyPrefix, time.Since(start), key)
	if err != nil {
		r.logger.Database().Error("Failed to save gate state to redis", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return fmt.Errorf("save gate state: %w", err)
	}
	return nil
}

// Clear deletes the record for key.
func (r *RedisRepository) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		r.logger.Database().Error("Failed to clear gate state in redis", "error", err.Error(), "identity", logging.MaskIdentity(key))
		return fmt.Errorf("clear gate state: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
