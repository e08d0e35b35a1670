package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrThrottled        = errors.New("too many attempts")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config tunes the fixed-window login throttle.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	// PerIP adds a second counter keyed by caller IP on top of the
	// per-email one.
	PerIP bool
}

// Limiter throttles login attempts with Redis fixed-window counters. It is
// a pre-filter in front of the account lockout: the lockout protects one
// account, the throttle caps how fast anyone can probe the endpoint.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check reports whether the email+IP pair still has budget. A nil Limiter
// allows everything.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.checkCounter(ctx, emailKey(email)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		return l.checkCounter(ctx, ipKey(ip))
	}
	return nil
}

// RecordFailure counts one failed attempt against the email+IP pair.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.increment(ctx, emailKey(email)); err != nil {
		return err
	}
	if l.config.PerIP && ip != "" {
		return l.increment(ctx, ipKey(ip))
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	keys := []string{emailKey(email)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrThrottled
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Fixed window: the TTL starts with the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

func emailKey(email string) string {
	return "pt:e:" + email
}

func ipKey(ip string) string {
	return "pt:i:" + ip
}
