package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	ri "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/response"
	"Kinship/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 是否按用户ID限流（需要认证）
	ByUserID bool
	// 是否按IP限流
	ByIP bool
	// 阻塞时长（秒），超过限制后禁止访问的时间
	BlockDuration int
	// 为空时使用全局 redis 客户端
	Client ri.Cmdable
	Now    func() time.Time
}

// DefaultRateLimitConfig 默认限流配置
var DefaultRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   100,
	KeyPrefix:     "rate:limit",
	ByUserID:      true,
	ByIP:          true,
	BlockDuration: 300,
}

// AuthRateLimitConfig 登录、注册、刷新 token，按 IP
var AuthRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   10,
	KeyPrefix:     "auth:rate",
	ByIP:          true,
	BlockDuration: 900,
}

// VerificationRateLimitConfig 发送与校验验证码，按 IP
var VerificationRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   5,
	KeyPrefix:     "verify:rate",
	ByIP:          true,
	BlockDuration: 1800,
}

// RateLimiter 限流器
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config: config,
	}
}

func (rl *RateLimiter) client() ri.Cmdable {
	if rl.config.Client != nil {
		return rl.config.Client
	}
	return redis.Client()
}

// identifier 优先按用户，其次按 IP
func (rl *RateLimiter) identifier(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByUserID {
		if userID, exists := GetUserID(ctx, c); exists {
			return "user:" + userID
		}
	}
	if rl.config.ByIP {
		return "ip:" + c.ClientIP()
	}
	return "global"
}

// Allow 检查是否允许请求，使用滑动窗口算法
func (rl *RateLimiter) Allow(ctx context.Context, id string) (bool, int, error) {
	key := redis.Key(rl.config.KeyPrefix, id)
	now := rl.config.Now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	// zset 实现滑动窗口：先清掉窗口外的记录，再记本次请求
	pipe := rl.client().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, ri.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(id string) string {
	return redis.Key(rl.config.KeyPrefix, "block", id)
}

func (rl *RateLimiter) Block(ctx context.Context, id string) error {
	return rl.client().Set(ctx, rl.blockKey(id), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, id string) (bool, error) {
	result, err := rl.client().Exists(ctx, rl.blockKey(id)).Result()
	return result > 0, err
}

// RateLimitMiddleware 创建限流中间件；redis 不可用时放行
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)

	return func(ctx context.Context, c *app.RequestContext) {
		id := limiter.identifier(ctx, c)

		blocked, err := limiter.IsBlocked(ctx, id)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.String("key", config.KeyPrefix), zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, id)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.String("key", config.KeyPrefix), zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.config.Now().Add(time.Duration(config.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, id); err != nil {
				logger.Logger.Error("Failed to block client", zap.String("id", id), zap.Error(err))
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// AuthRateLimitMiddleware 认证相关限流（登录、注册等）
func AuthRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(AuthRateLimitConfig)
}

// VerificationRateLimitMiddleware 验证码相关限流
func VerificationRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(VerificationRateLimitConfig)
}
