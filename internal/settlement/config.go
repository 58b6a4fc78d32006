package settlement

import (
	"time"

	"bountyhub.com/internal/settlement/commission"
	"bountyhub.com/internal/settlement/crypto"
	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/fiat"
	shttp "bountyhub.com/internal/settlement/http"
	"bountyhub.com/internal/settlement/provider/cryptopay"
	"bountyhub.com/internal/settlement/provider/fiatpay"
	"bountyhub.com/internal/settlement/provider/rails"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/orm"
	"bountyhub.com/pkg/xredis"
)

type Cfg struct {
	Name       string                  `yaml:"name" mapstructure:"name"`
	LogLevel   string                  `yaml:"log_level" mapstructure:"log_level"`
	HTTP       shttp.Config            `yaml:"http" mapstructure:"http"`
	Db         orm.Config              `yaml:"db" mapstructure:"db"`
	Redis      xredis.Config           `yaml:"redis" mapstructure:"redis"`
	OTel       OTel                    `yaml:"otel" mapstructure:"otel"`
	Nats       Nats                    `yaml:"nats" mapstructure:"nats"`
	Metrics    Metrics                 `yaml:"metrics" mapstructure:"metrics"`
	Commission Commission              `yaml:"commission" mapstructure:"commission"`
	Risk       risk.Config             `yaml:"risk" mapstructure:"risk"`
	Fiat       fiat.Config             `yaml:"fiat" mapstructure:"fiat"`
	Crypto     crypto.Config           `yaml:"crypto" mapstructure:"crypto"`
	Providers  Providers               `yaml:"providers" mapstructure:"providers"`
	Rails      map[string]rails.Config `yaml:"rails" mapstructure:"rails"`
	Encryption Encryption              `yaml:"encryption" mapstructure:"encryption"`
	Admin      Admin                   `yaml:"admin" mapstructure:"admin"`
	Balance    Balance                 `yaml:"balance" mapstructure:"balance"`
}

// DefaultCfg 配置文件里没写的字段保留这里的默认值，风控阈值不会因为漏配变成 0
func DefaultCfg() *Cfg {
	return &Cfg{
		Name:     "settlement-service",
		LogLevel: "info",
		HTTP:     shttp.Config{Addr: "0.0.0.0:8080", Metrics: true},
		Metrics:  Metrics{Addr: "0.0.0.0:9091"},
		Commission: Commission{
			DefaultRateBps: commission.DefaultRateBps,
		},
		Risk:    risk.DefaultConfig(),
		Fiat:    fiat.Config{Currency: domain.USD, EscrowTTL: 30 * 24 * time.Hour, PayoutTimeout: 30 * time.Second},
		Crypto:  crypto.Config{Currency: domain.USD, OrderTTL: time.Hour, DefaultAsset: domain.USDT},
		Admin:   Admin{SessionTTL: 2 * time.Hour},
		Balance: Balance{CacheTTL: 5 * time.Second},
	}
}

type OTel struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

type Nats struct {
	URL string `yaml:"url" mapstructure:"url"`
}

type Metrics struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Commission 费率单位 bps；Tiers 等级 -> 费率，Companies 公司 id -> 等级
type Commission struct {
	DefaultRateBps int               `yaml:"default_rate_bps" mapstructure:"default_rate_bps"`
	Tiers          map[string]int    `yaml:"tiers" mapstructure:"tiers"`
	Companies      map[string]string `yaml:"companies" mapstructure:"companies"`
}

type Providers struct {
	Fiat      fiatpay.Config   `yaml:"fiat" mapstructure:"fiat"`
	CryptoPay cryptopay.Config `yaml:"cryptopay" mapstructure:"cryptopay"`
}

// Encryption key 为 base64 编码的 32 字节
type Encryption struct {
	Key      string `yaml:"key" mapstructure:"key"`
	IndexKey string `yaml:"index_key" mapstructure:"index_key"`
}

type Admin struct {
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
}

type Balance struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}
