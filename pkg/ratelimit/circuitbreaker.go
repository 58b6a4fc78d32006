package ratelimit

import (
	"errors"
	"sync"
	"time"

	"bountyhub.com/pkg/metrics"
	"bountyhub.com/pkg/xerr"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数（MaxRequests=0 时库会当作 1）
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`

	// Rolling window 每个 bucket 周期（>0 则启用 rolling window；<=0 用 fixed window）
	BucketPeriod time.Duration `mapstructure:"bucket_period"`

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  `mapstructure:"trip_consecutive_failures"` // 连续失败阈值
	TripFailureRate         float64 `mapstructure:"trip_failure_rate"`         // 失败率阈值（0~1）
	TripMinRequests         uint32  `mapstructure:"trip_min_requests"`         // 失败率计算的最小样本数
}

// Manager 每个三方 (provider:method) 一个熔断器
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	provider    string
	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(provider string, defaultRule Rule, perMethod map[string]Rule) *Manager {

	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 16),
		provider:    provider,
		defaultRule: defaultRule,
		rules:       perMethod,
	}
}

func (m *Manager) Get(method string) *gobreaker.CircuitBreaker[struct{}] {
	// 快路径：读锁
	m.mu.RLock()
	cb := m.m[method]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	// 慢路径：创建
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[method]; cb != nil {
		return cb
	}

	rule, ok := m.rules[method]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         method,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,

		ReadyToTrip: func(c gobreaker.Counts) bool {
			// 1) 连续失败阈值优先（最直观）
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			// 2) 失败率阈值（适合波动流量）
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				failRate := float64(c.TotalFailures) / float64(c.Requests)
				return failRate >= rule.TripFailureRate
			}
			return false
		},

		// IsSuccessful 决定“哪些错误计入熔断失败”
		IsSuccessful: func(err error) bool {
			return isSuccessfulForBreaker(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.provider, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.provider, name, to.String()).Set(1)
		},
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[method] = cb
	return cb
}

func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}

	xe, ok := xerr.As(err)
	if !ok {
		// 非业务错误（网络、超时）：按失败计入
		return false
	}

	switch xe.Code {
	// ✅ “业务可预期/不代表依赖不健康” -> 不计入熔断失败
	case codes.InvalidArgument,
		codes.NotFound,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.AlreadyExists,
		codes.FailedPrecondition,
		codes.OutOfRange,
		codes.Canceled:
		return true

	// ❌ 这些通常代表依赖不健康/网络/超时/过载 -> 计入熔断失败
	case codes.Unavailable,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.Unknown,
		codes.ResourceExhausted, // 下游限流/资源耗尽：建议计入，让调用方降压
		codes.Aborted,
		codes.DataLoss:
		return false

	default:
		return false
	}
}

// Execute 经过熔断器执行 fn；熔断打开时直接拒绝，不再打到三方
func (m *Manager) Execute(method string, fn func() error) error {
	_, err := m.Get(method).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(m.provider, method, err.Error()).Inc()
	}
	return err
}
