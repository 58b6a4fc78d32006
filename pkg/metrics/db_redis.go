package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DbPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bountyhub_db_pool_open",
		Help: "Current open DB connections",
	})
	DbPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_db_pool_idle"})
	DbPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_db_pool_inuse"})
	DbPoolWaitCount    = promauto.NewCounter(prometheus.CounterOpts{Name: "bountyhub_db_pool_wait_count"})
	DbPoolWaitDuration = promauto.NewCounter(prometheus.CounterOpts{Name: "bountyhub_db_pool_wait_seconds"})

	RedisPoolOpen         = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_redis_pool_open"})
	RedisPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_redis_pool_idle"})
	RedisPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_redis_pool_inuse"})
	RedisPoolWaitCount    = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_redis_pool_wait_count"})
	RedisPoolWaitDuration = promauto.NewGauge(prometheus.GaugeOpts{Name: "bountyhub_redis_pool_wait_seconds"})
)
