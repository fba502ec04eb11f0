package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// keyPrefix namespaces lot-search entries in a shared Redis instance.
const keyPrefix = "lotsearch:q:"

// Redis is the shared cache backend. Backend failures degrade to a miss so
// the orchestrator keeps working when Redis is down.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisFromClient wires an existing client, used by tests.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]upstream.LotResult, bool) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("redis cache get failed")
		}
		return nil, false
	}
	var results []upstream.LotResult
	if err := json.Unmarshal(raw, &results); err != nil {
		log.Warn().Err(err).Msg("redis cache entry corrupt, dropping")
		r.client.Del(ctx, keyPrefix+key)
		return nil, false
	}
	return results, true
}

func (r *Redis) Set(ctx context.Context, key string, results []upstream.LotResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache set failed")
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache delete failed")
	}
}

// Ping checks connectivity for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
