package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Action string

const (
	ActionPayoutRequest    Action = "payout_request"
	ActionCryptoWithdrawal Action = "crypto_withdrawal"
	ActionPaymentIntent    Action = "payment_intent"
)

// Rule 滑动窗口限流规则
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Limiter 判断和计数必须是一个原子步骤，否则并发请求可以同时读到旧计数穿过阈值
type Limiter interface {
	// Allow 窗口内已记录次数 < limit 时记一次并放行
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func limitKey(action Action, actor int64, ip string) string {
	return fmt.Sprintf("risk:rl:%s:%d:%s", action, actor, ip)
}

// ---------------------------------------------------------
// Redis 实现：ZSET 滑动窗口 + Lua 保证原子
// ---------------------------------------------------------

// KEYS[1]: 计数 key
// ARGV: now(ms) window(ms) limit member
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= limit then
    return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`

type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, script: redis.NewScript(slidingWindowScript)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := l.script.Run(ctx, l.client, []string{key},
		now, window.Milliseconds(), limit, uuid.NewString()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ---------------------------------------------------------
// 内存实现：单机部署和测试用
// ---------------------------------------------------------

type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string][]time.Time, 256), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	cut := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cut) {
		i++
	}
	hits = hits[i:]
	if len(hits) >= limit {
		l.hits[key] = hits
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}
