package access

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Switch is the injected source of the global enforcement kill-switch.
// Implementations must be cheap: the switch is consulted on every gated call.
type Switch interface {
	// Enabled reports whether limit and feature enforcement is on.
	Enabled(ctx context.Context) bool
}

// StaticSwitch is a fixed enforcement setting, typically loaded from env.
type StaticSwitch bool

func (s StaticSwitch) Enabled(context.Context) bool { return bool(s) }

// RedisSwitch reads the enforcement flag from a shared Redis key so every
// instance sees a flip without a redeploy. A missing key or a Redis error
// falls back to the configured default rather than failing the request.
type RedisSwitch struct {
	client   redis.UniversalClient
	key      string
	fallback bool
	log      *slog.Logger
}

// NewRedisSwitch creates a Redis-backed enforcement switch.
func NewRedisSwitch(client redis.UniversalClient, key string, fallback bool, log *slog.Logger) *RedisSwitch {
	if client == nil {
		panic("access: redis client is required")
	}
	if key == "" {
		key = "subscription:enforcement_enabled"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &RedisSwitch{client: client, key: key, fallback: fallback, log: log}
}

func (s *RedisSwitch) Enabled(ctx context.Context) bool {
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.WarnContext(ctx, "enforcement switch read failed, using fallback",
				slog.String("key", s.key),
				slog.Any("error", err),
			)
		}
		return s.fallback
	}
	switch val {
	case "1", "true", "on":
		return true
	case "0", "false", "off":
		return false
	default:
		return s.fallback
	}
}

// SetEnabled flips the shared enforcement flag.
func (s *RedisSwitch) SetEnabled(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	return s.client.Set(ctx, s.key, val, 0).Err()
}
