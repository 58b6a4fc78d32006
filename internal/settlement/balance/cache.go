// Package balance 钱包余额的读缓存，只用于展示；扣款校验一律读库
package balance

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Cache interface {
	Get(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, bool, error)
	Set(ctx context.Context, w *domain.Wallet, ttl time.Duration) error
	Del(ctx context.Context, owner domain.OwnerType, ownerID int64) error
}

type redisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(c redis.UniversalClient) Cache {
	return &redisCache{client: c}
}

func (r *redisCache) Get(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, bool, error) {
	key := cacheKey(owner, ownerID)
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var w domain.Wallet
	if err := json.Unmarshal(b, &w); err != nil {
		// 缓存脏了就删掉，避免持续命中错误
		_ = r.client.Del(ctx, key).Err()
		return nil, false, err
	}
	return &w, true, nil
}

func (r *redisCache) Set(ctx context.Context, w *domain.Wallet, ttl time.Duration) error {
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cacheKey(w.OwnerType, w.OwnerID), b, withJitter(ttl, 300*time.Millisecond)).Err()
}

func (r *redisCache) Del(ctx context.Context, owner domain.OwnerType, ownerID int64) error {
	return r.client.Del(ctx, cacheKey(owner, ownerID)).Err()
}

func cacheKey(owner domain.OwnerType, ownerID int64) string {
	return fmt.Sprintf("settlement:bal:%s:%d", owner, ownerID)
}

func withJitter(ttl, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}

// Reader 先查缓存，未命中时合并并发回源
type Reader struct {
	wallets domain.WalletRepo
	cache   Cache
	ttl     time.Duration
	sf      singleflight.Group
}

func NewReader(wallets domain.WalletRepo, cache Cache, ttl time.Duration) *Reader {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Reader{wallets: wallets, cache: cache, ttl: ttl}
}

func (r *Reader) GetWallet(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, error) {
	if r.cache != nil {
		if w, ok, err := r.cache.Get(ctx, owner, ownerID); err == nil && ok {
			return w, nil
		} else if err != nil {
			logger.Warn(ctx, "balance cache get failed", zap.String("owner", string(owner)), zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}
	v, err, _ := r.sf.Do(cacheKey(owner, ownerID), func() (interface{}, error) {
		w, err := r.wallets.GetWallet(ctx, owner, ownerID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			_ = r.cache.Set(ctx, w, r.ttl)
		}
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*domain.Wallet)
	return &cp, nil
}

// Invalidate 资金变动后调用，失败只记日志，靠 TTL 兜底
func (r *Reader) Invalidate(ctx context.Context, owner domain.OwnerType, ownerID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, owner, ownerID); err != nil {
		logger.Warn(ctx, "balance cache del failed", zap.String("owner", string(owner)), zap.Int64("owner_id", ownerID), zap.Error(err))
	}
}
