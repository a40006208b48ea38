package redis

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter used to throttle operator login
// attempts.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one hit against key and reports whether it is still within
// limit for the window. Redis errors are returned; the caller decides
// whether to fail open.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}

// LoginKey buckets login attempts by remote address.
func LoginKey(remoteAddr string) string {
	return "rate_limit:login:" + remoteAddr
}
