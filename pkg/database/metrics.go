package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// StatSource is implemented by *pgxpool.Pool.
type StatSource interface {
	Stat() *pgxpool.Stat
}

type poolMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	pool    StatSource
	service string
	metrics []poolMetric
}

// NewPoolStatsCollector builds a collector for pool. Describe works with a nil
// pool; Collect requires a live one.
func NewPoolStatsCollector(pool StatSource, service string) *PoolStatsCollector {
	labels := []string{"service"}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) poolMetric {
		return poolMetric{prometheus.NewDesc(name, help, labels, nil), prometheus.GaugeValue, fn}
	}
	counter := func(name, help string, fn func(*pgxpool.Stat) float64) poolMetric {
		return poolMetric{prometheus.NewDesc(name, help, labels, nil), prometheus.CounterValue, fn}
	}

	return &PoolStatsCollector{
		pool:    pool,
		service: service,
		metrics: []poolMetric{
			gauge("db_pool_acquired_connections", "Number of currently acquired connections",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
			gauge("db_pool_idle_connections", "Number of currently idle connections",
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
			gauge("db_pool_total_connections", "Total number of connections in the pool",
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
			gauge("db_pool_max_connections", "Maximum number of connections allowed",
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
			counter("db_pool_acquire_count_total", "Total number of connection acquires",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }),
			counter("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections",
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }),
			counter("db_pool_canceled_acquire_count_total", "Total number of canceled connection acquires",
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }),
			counter("db_pool_empty_acquire_count_total", "Total number of acquires that waited for a connection",
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a pool collector with the default registry.
func RegisterPoolMetrics(pool StatSource, service string) {
	prometheus.MustRegister(NewPoolStatsCollector(pool, service))
}
