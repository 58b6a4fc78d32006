package http

import (
	"context"
	"net/http"
	"time"

	"bountyhub.com/internal/settlement/handler"
	"bountyhub.com/internal/settlement/http/router"
	"bountyhub.com/internal/settlement/session"
	"bountyhub.com/pkg/middleware"
	"bountyhub.com/pkg/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

type Config struct {
	Addr        string  `mapstructure:"addr"`
	ServiceName string  `mapstructure:"-"`
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
	// Metrics 为 false 时不挂 /metrics，测试里避免重复注册
	Metrics bool `mapstructure:"metrics"`
}

// NewEngine 中间件顺序：trace -> request id -> cors -> recover -> 限流
func NewEngine(ctx context.Context, cfg Config, h *handler.Handler, sessions session.Store) *gin.Engine {
	if cfg.RPS <= 0 {
		cfg.RPS = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	store := ratelimit.NewStore(rate.Limit(cfg.RPS), cfg.Burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	if cfg.Metrics {
		p := ginprom.NewPrometheus("bountyhub")
		p.Use(r)
	}
	r.Use(
		otelgin.Middleware(cfg.ServiceName),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api/v1")
	router.Webhooks(api, h)
	router.Fiat(api, h)
	router.Crypto(api, h)
	router.Disputes(api, h)
	router.Admin(api, h, AdminSession(sessions), Logout(sessions))
	return r
}

func NewServer(ctx context.Context, cfg Config, h *handler.Handler, sessions session.Store) *http.Server {
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        NewEngine(ctx, cfg, h, sessions),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   45 * time.Second, // 同步打款最长 30s
		MaxHeaderBytes: 1 << 20,
	}
}
