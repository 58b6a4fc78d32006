package risk

import (
	"context"
	"sync"
	"time"

	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/xredis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker 按用户串行化 "风控检查 + 落单"，保证计数类规则在并发下不被绕过
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type RedisLocker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	retries  int
	interval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retries: 50, interval: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	dl := xredis.NewDistLock(l.client, key, l.ttl)
	if err := dl.Lock(ctx, l.retries, l.interval); err != nil {
		return nil, err
	}
	return func() {
		// 解锁不跟随请求 ctx，请求取消了也要把锁还回去
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := dl.Unlock(unlockCtx); err != nil || !ok {
			logger.Warn(ctx, "释放分布式锁失败", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
		}
	}, nil
}

// LocalLocker 进程内按 key 加锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}
	return func() { l.release(key, e, true) }, nil
}

func (l *LocalLocker) release(key string, e *localEntry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
