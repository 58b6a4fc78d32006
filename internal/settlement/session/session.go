// Package session 管理员会话：token -> admin id，带过期时间
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	Create(ctx context.Context, adminID int64) (token string, err error)
	Get(ctx context.Context, token string) (adminID int64, err error)
	Delete(ctx context.Context, token string) error
}

type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(token string) string { return "admin:session:" + token }

func (s *RedisStore) Create(ctx context.Context, adminID int64) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, key(token), adminID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (int64, error) {
	v, err := s.rdb.Get(ctx, key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, key(token)).Err()
}

type entry struct {
	adminID  int64
	expireAt time.Time
}

// MemoryStore 单机/测试用，过期在读取时惰性清理
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, adminID int64) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	s.m[token] = entry{adminID: adminID, expireAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[token]
	if !ok {
		return 0, ErrNotFound
	}
	if !s.now().Before(e.expireAt) {
		delete(s.m, token)
		return 0, ErrNotFound
	}
	return e.adminID, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.m, token)
	s.mu.Unlock()
	return nil
}
