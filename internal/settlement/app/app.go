package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bountyhub.com/internal/settlement"
	"bountyhub.com/internal/settlement/balance"
	"bountyhub.com/internal/settlement/commission"
	"bountyhub.com/internal/settlement/crypto"
	"bountyhub.com/internal/settlement/dispute"
	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/fiat"
	"bountyhub.com/internal/settlement/handler"
	shttp "bountyhub.com/internal/settlement/http"
	"bountyhub.com/internal/settlement/notify"
	"bountyhub.com/internal/settlement/provider/cryptopay"
	"bountyhub.com/internal/settlement/provider/fiatpay"
	"bountyhub.com/internal/settlement/provider/rails"
	smysql "bountyhub.com/internal/settlement/repo/mysql"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/internal/settlement/session"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"bountyhub.com/pkg/orm"
	"bountyhub.com/pkg/secure"
	"bountyhub.com/pkg/trace"
	"bountyhub.com/pkg/xredis"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = 10 * time.Second

type App struct {
	cfg *settlement.Cfg

	db       *gorm.DB
	rdb      *redis.Client
	nc       *notify.NatsNotifier
	shutdown func(context.Context) error

	Handler  *handler.Handler
	Sessions session.Store
	Fiat     *fiat.Service
	Crypto   *crypto.Service
	Disputes *dispute.Service
}

// New 组装所有依赖；Redis 没配置时退回进程内实现，只适合单实例
func New(ctx context.Context, cfg *settlement.Cfg) (*App, error) {
	a := &App{cfg: cfg}

	if cfg.OTel.Enabled {
		sd, err := trace.InitTrace(cfg.Name, cfg.OTel.Addr)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.shutdown = sd
	}

	db, err := orm.NewMySQL(&cfg.Db)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init mysql: %w", err)
	}
	a.db = db
	if sqlDB, err := db.DB(); err == nil {
		observeDBStats(ctx, sqlDB)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := xredis.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.rdb = rdb
		observeRedisStats(ctx, rdb)
	}

	var notifier domain.Notifier = notify.LogNotifier{}
	if cfg.Nats.URL != "" {
		nc, err := notify.NewNatsNotifier(cfg.Nats.URL, nats.Name(cfg.Name))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		a.nc = nc
		notifier = nc
	}

	cipher, err := secure.NewCipherFromBase64(cfg.Encryption.Key, cfg.Encryption.IndexKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	a.build(ctx, smysql.New(db, cfg.Fiat.Currency), cipher, notifier)
	return a, nil
}

func (a *App) build(ctx context.Context, repo *smysql.Repo, cipher *secure.Cipher, notifier domain.Notifier) {
	cfg := a.cfg

	var (
		limiter  risk.Limiter
		locker   risk.Locker
		sessions session.Store
		cache    balance.Cache
	)
	if a.rdb != nil {
		limiter = risk.NewRedisLimiter(a.rdb)
		locker = risk.NewRedisLocker(a.rdb, lockTTL)
		sessions = session.NewRedisStore(a.rdb, cfg.Admin.SessionTTL)
		cache = balance.NewRedisCache(a.rdb)
	} else {
		logger.Warn(ctx, "redis not configured, using in-process limiter/lock/session")
		limiter = risk.NewMemoryLimiter()
		locker = risk.NewLocalLocker()
		sessions = session.NewMemoryStore(cfg.Admin.SessionTTL)
	}

	guard := risk.NewGuard(cfg.Risk, limiter, repo)
	calc := commission.NewCalculator(cfg.Commission.DefaultRateBps, cfg.Commission.Tiers)

	a.Fiat = fiat.NewService(cfg.Fiat, fiat.Deps{
		Store:      repo,
		Provider:   fiatpay.New(cfg.Providers.Fiat),
		Rail:       newRails(cfg.Rails),
		Calculator: calc,
		Tiers:      commission.StaticTiers(cfg.Commission.Companies),
		Guard:      guard,
		Locker:     locker,
		Cipher:     cipher,
		Notifier:   notifier,
	})
	a.Crypto = crypto.NewService(cfg.Crypto, crypto.Deps{
		Store:    repo,
		Provider: cryptopay.New(cfg.Providers.CryptoPay),
		Guard:    guard,
		Locker:   locker,
		Cipher:   cipher,
		Notifier: notifier,
	})
	a.Disputes = dispute.NewService(repo, locker, notifier)
	a.Sessions = sessions
	a.Handler = handler.New(a.Fiat, a.Crypto, a.Disputes,
		balance.NewReader(repo, cache, cfg.Balance.CacheTTL), cfg.Fiat.Currency)
}

// newRails platform_balance 在账本内完成，不需要外部通道
func newRails(cfg map[string]rails.Config) *rails.Dispatcher {
	m := make(map[domain.MethodType]domain.PayoutRail, len(cfg))
	for name, rc := range cfg {
		mt, err := domain.ParseMethodType(name)
		if err != nil || mt == domain.MethodPlatformBalance {
			logger.Warn(context.Background(), "skip unknown payout rail", zap.String("rail", name))
			continue
		}
		if rc.Name == "" {
			rc.Name = name
		}
		m[mt] = rails.NewHTTPRail(rc)
	}
	return rails.NewDispatcher(m)
}

// Run 阻塞直到 ctx 取消或 HTTP 服务出错，然后优雅关闭
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg
	cfg.HTTP.ServiceName = cfg.Name
	srv := shttp.NewServer(ctx, cfg.HTTP, a.Handler, a.Sessions)

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metrics.MustRegister()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics server error", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	case runErr = <-errCh:
		logger.Error(ctx, "http server error", zap.Error(runErr))
	}

	// 先停接入，再等进行中的打款跑完
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown error", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func (a *App) Close() {
	ctx := context.Background()
	if a.nc != nil {
		_ = a.nc.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdown != nil {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.shutdown(c); err != nil {
			logger.Error(ctx, "shutdown tracer error", zap.Error(err))
		}
	}
}

// observeDBStats 采集 DB 连接池指标
func observeDBStats(ctx context.Context, db *sql.DB) {
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		var lastWaitCount int64
		var lastWaitDuration time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st := db.Stats()
			metrics.DbPoolOpen.Set(float64(st.OpenConnections))
			metrics.DbPoolIdle.Set(float64(st.Idle))
			metrics.DbPoolInuse.Set(float64(st.InUse))

			if d := st.WaitCount - lastWaitCount; d > 0 {
				metrics.DbPoolWaitCount.Add(float64(d))
				lastWaitCount = st.WaitCount
			}
			if d := st.WaitDuration - lastWaitDuration; d > 0 {
				metrics.DbPoolWaitDuration.Add(d.Seconds())
				lastWaitDuration = st.WaitDuration
			}
		}
	}()
}

// observeRedisStats 采集 Redis 连接池指标
func observeRedisStats(ctx context.Context, rdb *redis.Client) {
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st := rdb.PoolStats()
			metrics.RedisPoolOpen.Set(float64(st.TotalConns))
			metrics.RedisPoolIdle.Set(float64(st.IdleConns))
			metrics.RedisPoolInuse.Set(float64(st.TotalConns - st.IdleConns))
			metrics.RedisPoolWaitCount.Set(float64(st.WaitCount))
			metrics.RedisPoolWaitDuration.Set(time.Duration(st.WaitDurationNs).Seconds())
		}
	}()
}
