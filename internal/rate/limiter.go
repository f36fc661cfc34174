package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter budgets. A zero attempt budget disables that limit.
type Config struct {
	Prefix            string
	MaxSignInFailures int
	SignInWindow      time.Duration
	MaxRefreshes      int
	RefreshWindow     time.Duration
}

// DefaultConfig mirrors the hosted backend's default auth rate limits.
func DefaultConfig() Config {
	return Config{
		Prefix:            "docportal:rl",
		MaxSignInFailures: 10,
		SignInWindow:      5 * time.Minute,
		MaxRefreshes:      30,
		RefreshWindow:     5 * time.Minute,
	}
}

// Limiter enforces per-email sign-in and per-session refresh budgets using
// Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) signInKey(email string) string {
	return l.config.Prefix + ":si:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) refreshKey(sessionID string) string {
	return l.config.Prefix + ":rf:" + sessionID
}

// CheckSignIn returns ErrRateLimited when email has used its failure budget.
func (l *Limiter) CheckSignIn(ctx context.Context, email string) error {
	if l.config.MaxSignInFailures <= 0 {
		return nil
	}
	return l.checkCounter(ctx, l.signInKey(email), l.config.MaxSignInFailures)
}

// RecordSignInFailure counts a failed sign-in for email.
func (l *Limiter) RecordSignInFailure(ctx context.Context, email string) error {
	if l.config.MaxSignInFailures <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, l.signInKey(email), l.config.SignInWindow)
	return err
}

// ResetSignIn clears the failure counter after a successful sign-in.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.signInKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SignInFailures returns the current failure count for email.
func (l *Limiter) SignInFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.signInKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// AllowRefresh counts one refresh for sessionID and reports ErrRateLimited
// once the window budget is exceeded.
func (l *Limiter) AllowRefresh(ctx context.Context, sessionID string) error {
	if l.config.MaxRefreshes <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.refreshKey(sessionID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshes) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set on the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
