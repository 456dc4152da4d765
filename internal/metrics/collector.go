package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "tiercache",
		Labels:    make(map[string]string),
	}
}

// Collector records cache activity as Prometheus metrics. A nil or
// disabled Collector accepts every call and records nothing.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	lookups        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	writes         *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	errors         *prometheus.CounterVec
	tierBytes      *prometheus.GaugeVec
	tierEntries    *prometheus.GaugeVec
	hitRate        prometheus.Gauge
	preheatKeys    *prometheus.CounterVec
	remoteFetches  *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry returns the collector's registry, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// Path is the HTTP path the metrics are served on.
func (c *Collector) Path() string {
	if c == nil {
		return "/metrics"
	}
	return c.config.Path
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordLookup records the outcome of one get. tier is the tier that
// answered, or "none" on a miss.
func (c *Collector) RecordLookup(tier string, hit bool, duration time.Duration) {
	if !c.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.lookups.With(prometheus.Labels{"tier": tier, "result": result}).Inc()
	c.lookupDuration.With(prometheus.Labels{"result": result}).Observe(duration.Seconds())
}

// RecordWrite records a set against a tier.
func (c *Collector) RecordWrite(tier string, size int64) {
	if !c.enabled() {
		return
	}
	c.writes.With(prometheus.Labels{"tier": tier}).Inc()
}

// RecordEvictions adds n evictions for reason ("capacity" or "expired").
func (c *Collector) RecordEvictions(reason string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.evictions.With(prometheus.Labels{"reason": reason}).Add(float64(n))
}

// RecordError counts a tier I/O or serialization failure.
func (c *Collector) RecordError(tier, operation string) {
	if !c.enabled() {
		return
	}
	c.errors.With(prometheus.Labels{"tier": tier, "operation": operation}).Inc()
}

// UpdateTierSize sets the byte and entry gauges for a tier.
func (c *Collector) UpdateTierSize(tier string, bytes int64, entries int) {
	if !c.enabled() {
		return
	}
	c.tierBytes.With(prometheus.Labels{"tier": tier}).Set(float64(bytes))
	c.tierEntries.With(prometheus.Labels{"tier": tier}).Set(float64(entries))
}

// UpdateHitRate sets the aggregate hit-rate gauge.
func (c *Collector) UpdateHitRate(rate float64) {
	if !c.enabled() {
		return
	}
	c.hitRate.Set(rate)
}

// RecordPreheat counts keys driven through a preheat run.
func (c *Collector) RecordPreheat(strategy string, attempted, warm int) {
	if !c.enabled() {
		return
	}
	c.preheatKeys.With(prometheus.Labels{"strategy": strategy, "result": "attempted"}).Add(float64(attempted))
	c.preheatKeys.With(prometheus.Labels{"strategy": strategy, "result": "warm"}).Add(float64(warm))
}

// RecordRemoteFetch counts remote source calls by outcome
// ("found", "not_found", "error" or "rejected").
func (c *Collector) RecordRemoteFetch(source, outcome string) {
	if !c.enabled() {
		return
	}
	c.remoteFetches.With(prometheus.Labels{"source": source, "outcome": outcome}).Inc()
}

func (c *Collector) initMetrics() {
	ns, sub, labels := c.config.Namespace, c.config.Subsystem, prometheus.Labels(c.config.Labels)

	c.lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "lookups_total",
		Help: "Cache lookups by answering tier and result",
	}, []string{"tier", "result"})

	c.lookupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name:    "lookup_duration_seconds",
		Help:    "End-to-end lookup latency",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~40s
	}, []string{"result"})

	c.writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "writes_total",
		Help: "Cache writes by tier",
	}, []string{"tier"})

	c.evictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "evictions_total",
		Help: "Entries removed for capacity or expiry",
	}, []string{"reason"})

	c.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "errors_total",
		Help: "Tier I/O and serialization failures",
	}, []string{"tier", "operation"})

	c.tierBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "tier_size_bytes",
		Help: "Estimated bytes resident per tier",
	}, []string{"tier"})

	c.tierEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "tier_entries",
		Help: "Entries resident per tier",
	}, []string{"tier"})

	c.hitRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "hit_rate",
		Help: "Hits divided by total requests",
	})

	c.preheatKeys = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "preheat_keys_total",
		Help: "Keys driven through preheat runs",
	}, []string{"strategy", "result"})

	c.remoteFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, ConstLabels: labels,
		Name: "remote_fetches_total",
		Help: "Network-tier source calls by outcome",
	}, []string{"source", "outcome"})
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.lookups,
		c.lookupDuration,
		c.writes,
		c.evictions,
		c.errors,
		c.tierBytes,
		c.tierEntries,
		c.hitRate,
		c.preheatKeys,
		c.remoteFetches,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
