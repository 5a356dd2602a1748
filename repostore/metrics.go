package repostore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "repostore_block_cache_hits",
	Help: "Number of block reads served from the cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "repostore_block_cache_misses",
	Help: "Number of block reads which missed the cache",
})

var storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repostore_ops",
	Help: "Number of storage operations, by op and status",
}, []string{"op", "status"})

var storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "repostore_op_duration_seconds",
	Help:    "Duration of storage operations",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
}, []string{"op"})

var blocksWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "repostore_blocks_written",
	Help: "Number of blocks written",
})
