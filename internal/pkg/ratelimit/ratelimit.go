package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskboard:ratelimit:"

// Limiter 是基于 Redis 的固定窗口限流器。
//
// 按 key（如登录邮箱或客户端 IP）独立计数；窗口内超过 limit 次即拒绝，
// 窗口过期后计数自动清零。
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// NewLimiter 创建限流器。limit 或 window 非法时限流关闭（Allow 恒为 true）。
func NewLimiter(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
	}
}

// Allow 对 key 记一次尝试，返回本次是否放行。
//
// Redis 不可用时返回错误，由调用方决定放行还是拒绝。
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 || l.window <= 0 {
		return true, nil
	}
	if key == "" {
		return true, nil
	}

	redisKey := keyPrefix + key

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit expire: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

// Reset 清除 key 的计数（登录成功后调用，避免惩罚正常用户）。
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.rdb == nil || key == "" {
		return nil
	}
	if err := l.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit del: %w", err)
	}
	return nil
}
