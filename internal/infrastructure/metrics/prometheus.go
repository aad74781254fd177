// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidrelay"

var (
	// CacheOperationsTotal tracks cache operations.
	// Labels:
	//   - operation: get, set, delete, sweep
	//   - status: hit, miss, stale, corrupt, success, error
	//   - cache_type: file, redis, postgres, minio
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// CacheSweepRemovedTotal counts entries purged by retention sweeps.
	CacheSweepRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sweep_removed_total",
			Help:      "Total number of cache entries removed by sweeps",
		},
		[]string{"cache_type"},
	)

	// ResolverRequestsTotal tracks live resolutions against the upstream source.
	// Labels:
	//   - result: success, error
	ResolverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_requests_total",
			Help:      "Total number of live item resolutions",
		},
		[]string{"result"},
	)

	// ProxyResponsesTotal tracks upstream fetches made by the streaming proxy.
	// Labels:
	//   - status: upstream status code, or "error" on transport failure
	ProxyResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_responses_total",
			Help:      "Total number of upstream stream fetches by status",
		},
		[]string{"status"},
	)

	// ProxyBytesTotal counts bytes relayed to callers.
	ProxyBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_bytes_total",
			Help:      "Total number of media bytes relayed to callers",
		},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusStale   = "stale"
	CacheStatusCorrupt = "corrupt"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
	CacheOpSweep  = "sweep"
)

// Cache type constants.
const (
	CacheTypeFile     = "file"
	CacheTypeRedis    = "redis"
	CacheTypePostgres = "postgres"
	CacheTypeMinIO    = "minio"
)

// Resolver result constants.
const (
	ResolverSuccess = "success"
	ResolverError   = "error"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
