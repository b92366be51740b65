package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	fieldData      = "d"
	fieldTombstone = "eof"

	defaultMaxLen       = 1000
	defaultBlock        = 500 * time.Millisecond
	defaultTombstoneTTL = time.Minute
	defaultClosedTTL    = 10 * time.Minute
)

// publishScript appends to the session stream unless the session's closed
// marker exists, in which case it replies nil.
var publishScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return false
end
return redis.call("XADD", KEYS[1], "MAXLEN", "~", ARGV[1], "*", "` + fieldData + `", ARGV[2])
`)

// Config for Redis-backed SessionHost. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
	// MaxLen bounds each session stream. ENV: SESSIONS_STREAM_MAXLEN
	MaxLen int64 `env:"SESSIONS_STREAM_MAXLEN,default=1000"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
	block     time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Host{client: cl, keyPrefix: prefix, maxLen: maxLen, block: defaultBlock}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return New(ctx, cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) streamKey(sessionID string) string { return h.keyPrefix + "stream:" + sessionID }
func (h *Host) closedKey(sessionID string) string { return h.keyPrefix + "closed:" + sessionID }

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	keys := []string{h.streamKey(sessionID), h.closedKey(sessionID)}
	id, err := publishScript.Run(ctx, h.client, keys, h.maxLen, data).Text()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	key := h.streamKey(sessionID)

	closed, err := h.client.Exists(ctx, h.closedKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("exists: %w", err)
	}
	if closed > 0 {
		return nil
	}

	start, err := h.resumePoint(ctx, key, lastEventID)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 100, Block: h.block}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread: %w", err)
		}
		for _, stream := range res {
			for _, m := range stream.Messages {
				start = m.ID
				if _, ok := m.Values[fieldTombstone]; ok {
					return nil
				}
				if err := handler(ctx, m.ID, payloadOf(m.Values[fieldData])); err != nil {
					return err
				}
			}
		}
	}
}

// resumePoint turns a Last-Event-ID into an XREAD start id. An empty id
// pins the current tail so that entries appended between polls are not
// skipped the way a repeated "$" would skip them.
func (h *Host) resumePoint(ctx context.Context, key, lastEventID string) (string, error) {
	if lastEventID == "" {
		tail, err := h.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
		if err != nil {
			return "", fmt.Errorf("xrevrange: %w", err)
		}
		if len(tail) == 0 {
			return "0-0", nil
		}
		return tail[0].ID, nil
	}
	found, err := h.client.XRange(ctx, key, lastEventID, lastEventID).Result()
	if err != nil {
		// Malformed stream ids are rejected by Redis itself.
		return "", fmt.Errorf("%w: %s: %v", sessions.ErrEventNotFound, lastEventID, err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w: %s", sessions.ErrEventNotFound, lastEventID)
	}
	return lastEventID, nil
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	c := context.WithoutCancel(ctx)
	key := h.streamKey(sessionID)
	pipe := h.client.TxPipeline()
	pipe.XAdd(c, &redis.XAddArgs{Stream: key, Values: map[string]any{fieldTombstone: "1"}})
	pipe.Expire(c, key, defaultTombstoneTTL)
	pipe.Set(c, h.closedKey(sessionID), "1", defaultClosedTTL)
	if _, err := pipe.Exec(c); err != nil {
		return fmt.Errorf("cleanup session stream: %w", err)
	}
	return nil
}

func payloadOf(v any) []byte {
	switch v := v.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return fmt.Appendf(nil, "%v", v)
	}
}

var _ sessions.SessionHost = (*Host)(nil)
