package image

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_image_cache_hits_total",
		Help: "The total number of image loads served from the memory cache",
	})

	promCounterForCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_image_cache_misses_total",
		Help: "The total number of image loads missing the memory cache",
	})

	promCounterForDiskCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_image_disk_cache_hits_total",
		Help: "The total number of image loads served from the disk cache",
	})

	promCounterForFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_image_fetch_retries_total",
		Help: "The total number of image fetch attempts that failed and were retried",
	})

	promCounterForFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_image_fetch_failures_total",
		Help: "The total number of image fetches that gave up",
	})
)
