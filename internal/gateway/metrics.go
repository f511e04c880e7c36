package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_gateway_runs_total",
	Help: "Inbound events processed by final status",
}, []string{"status"})

var runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "pixilgnang_gateway_run_duration_seconds",
	Help:    "Time spent processing one inbound event",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pixilgnang_gateway_queue_depth",
	Help: "Inbound events waiting in lanes",
})

var relayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_gateway_relayed_replies_total",
	Help: "Moderator replies relayed to users by mode",
}, []string{"mode"})
