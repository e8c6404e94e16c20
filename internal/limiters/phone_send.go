package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPhoneSendRateLimited        = errors.New("phone send rate limited")
	ErrPhoneSendLimiterUnavailable = errors.New("phone send limiter unavailable")
)

type PhoneSendConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// PhoneSendLimiter counts code sends per number in a fixed window.
type PhoneSendLimiter struct {
	redis  redis.UniversalClient
	config PhoneSendConfig
}

func NewPhoneSendLimiter(redisClient redis.UniversalClient, cfg PhoneSendConfig) *PhoneSendLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gs"
	}
	return &PhoneSendLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSend records one send to number and fails once the window's limit is passed.
// A nil limiter or a non-positive limit allows everything.
func (l *PhoneSendLimiter) CheckSend(ctx context.Context, number string) error {
	if l == nil || l.config.Limit <= 0 {
		return nil
	}

	key := l.config.Prefix + ":ps:" + number
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneSendLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrPhoneSendLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.Limit) {
		return ErrPhoneSendRateLimited
	}
	return nil
}

// Reset clears the counter for number, typically after a confirmed sign-in.
func (l *PhoneSendLimiter) Reset(ctx context.Context, number string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.config.Prefix+":ps:"+number).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneSendLimiterUnavailable, err)
	}
	return nil
}
