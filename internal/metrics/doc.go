/*
Package metrics exports cache activity to Prometheus.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "tiercache",
	})
	if err != nil {
		return err
	}
	router.Handle(collector.Path(), collector.Handler())

Series:

	tiercache_lookups_total{tier,result}
	tiercache_lookup_duration_seconds{result}
	tiercache_writes_total{tier}
	tiercache_evictions_total{reason}
	tiercache_errors_total{tier,operation}
	tiercache_tier_size_bytes{tier}
	tiercache_tier_entries{tier}
	tiercache_hit_rate
	tiercache_preheat_keys_total{strategy,result}
	tiercache_remote_fetches_total{source,outcome}

Every recording method is safe on a nil or disabled *Collector, so callers
never need to guard them.
*/
package metrics
