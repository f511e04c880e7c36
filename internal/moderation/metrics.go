package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_moderation_actions_total",
	Help: "Moderation button presses by action and outcome",
}, []string{"action", "outcome"})

var rateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_moderation_rate_limited_total",
	Help: "Accept attempts denied by the channel cooldown",
}, []string{"destination"})

var publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pixilgnang_publish_duration_seconds",
	Help:    "Time spent in the publish pipeline per accept",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
}, []string{"destination", "status"})
