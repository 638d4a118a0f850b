package notify

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRedisChannel = "interviewer:events"
	DefaultRedisPrefix  = "interviewer:session:"

	redisTimeout = 2 * time.Second
	sessionTTL   = 24 * time.Hour
)

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisPublisher mirrors session events into Redis: every event is published
// on a channel and the latest state of each session is kept in a hash.
type RedisPublisher struct {
	client  redisClient
	channel string
	prefix  string
}

// NewRedisPublisher connects to addr. Empty channel and prefix use defaults.
func NewRedisPublisher(addr, password string, db int, channel, prefix string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return newRedisPublisher(client, channel, prefix)
}

func newRedisPublisher(client redisClient, channel, prefix string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPublisher{client: client, channel: channel, prefix: prefix}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if c, ok := p.client.(*redis.Client); ok {
		return c.Ping(ctx).Err()
	}
	return nil
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	if c, ok := p.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

// Notify implements Observer. Failures are logged and never reach the session.
func (p *RedisPublisher) Notify(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		log.Warn().Msgf("Session %s: encode event: %v", e.SessionID, err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		log.Warn().Msgf("Session %s: redis PUBLISH %s: %v", e.SessionID, p.channel, err)
	}

	key := p.prefix + e.SessionID
	if err := p.client.HSet(ctx, key, "state", e.State, string(e.Kind), e.Text, "updated_at", e.Time.Format(time.RFC3339Nano)).Err(); err != nil {
		log.Warn().Msgf("Session %s: redis HSET %s: %v", e.SessionID, key, err)
		return
	}
	if err := p.client.Expire(ctx, key, sessionTTL).Err(); err != nil {
		log.Warn().Msgf("Session %s: redis EXPIRE %s: %v", e.SessionID, key, err)
	}
}
