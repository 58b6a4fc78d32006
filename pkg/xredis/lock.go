package xredis

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua 脚本：释放锁
// KEYS[1]: 锁的 key
// ARGV[1]: 锁的 value (token)，防止误删别人的锁
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

var ErrLockNotAcquired = errors.New("lock not acquired")

type DistLock struct {
	client     redis.UniversalClient
	key        string
	token      string        // 锁的唯一标识 (UUID)，谁加锁谁解锁
	expiration time.Duration // 锁的自动过期时间，持有者挂掉后自动释放
}

func NewDistLock(client redis.UniversalClient, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.New().String(), // 每个锁实例生成唯一的 Token
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞，一次性）
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	// NX: 只有 Key 不存在时才设置
	// PX: 过期时间 (毫秒)
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// Lock 自旋锁，重试次数用尽返回 ErrLockNotAcquired
func (l *DistLock) Lock(ctx context.Context, retryTimes int, retryInterval time.Duration) error {
	for i := 0; i < retryTimes; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}

		// 加上随机抖动，防止所有等待方同时唤醒冲击 Redis
		sleepTime := retryInterval + time.Duration(rand.Intn(10))*time.Millisecond

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
		}
	}
	return ErrLockNotAcquired
}

// Unlock 安全释放锁
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	// 执行 Lua 脚本，确保原子性
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, err
	}
	// 1 表示删除成功，0 表示 Key 不存在或 Token 不匹配
	return res == 1, nil
}
