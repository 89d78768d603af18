package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// LiveStats provides the collector access to in-process state.
type LiveStats interface {
	TranslationsInFlight() int
	SubscriberCount() int
	CachedTranslations() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	stats LiveStats

	inFlight        *prometheus.Desc
	subscribers     *prometheus.Desc
	cacheEntries    *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil when no journal database is configured.
func NewCollector(pool *pgxpool.Pool, stats LiveStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "translations_in_flight"),
			"Live translation requests awaiting a response.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_subscribers_active"),
			"Current number of SSE and WebSocket subscribers.",
			nil, nil,
		),
		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "translation_cache_entries"),
			"Entries held in the history translation cache.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total journal database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Journal database pool connections currently in use.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inFlight
	ch <- c.subscribers
	ch <- c.cacheEntries
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var inFlight, subs, cached float64
	if c.stats != nil {
		inFlight = float64(c.stats.TranslationsInFlight())
		subs = float64(c.stats.SubscriberCount())
		cached = float64(c.stats.CachedTranslations())
	}
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, inFlight)
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subs)
	ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, cached)

	var total, acquired float64
	if c.pool != nil {
		stat := c.pool.Stat()
		total = float64(stat.TotalConns())
		acquired = float64(stat.AcquiredConns())
	}
	ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, total)
	ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, acquired)
}
