// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package holder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level metrics for the permission cache and resolution engine.
// Register with your Prometheus registry at startup.
var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permgate_cache_lookups_total",
			Help: "Total permission cache lookups by result (hit, miss, or wait for an in-flight compute)",
		},
		[]string{"result"},
	)

	cacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "permgate_cache_invalidations_total",
			Help: "Total permission cache invalidations",
		},
	)

	resolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "permgate_resolution_duration_seconds",
			Help:    "Time spent resolving and merging a holder's nodes",
			Buckets: prometheus.ExponentialBuckets(0.000005, 4, 10),
		},
	)
)

// RegisterMetrics registers the engine metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(cacheLookups, cacheInvalidations, resolutionDuration)
}

// Cache lookup results.
const (
	lookupHit  = "hit"
	lookupMiss = "miss"
	lookupWait = "wait"
)

func recordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func recordInvalidation() {
	cacheInvalidations.Inc()
}

func recordResolution(d time.Duration) {
	resolutionDuration.Observe(d.Seconds())
}
