package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "interview",
		Subsystem: "ai",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of complete evaluations including retries",
	}, []string{"model"})

	aiProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "interview",
		Subsystem: "ai",
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of individual provider calls",
	}, []string{"provider", "model"})

	aiAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Subsystem: "ai",
		Name:      "attempts_total",
		Help:      "Number of evaluation attempts by outcome",
	}, []string{"provider", "outcome"})

	aiRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Subsystem: "ai",
		Name:      "repairs_total",
		Help:      "Number of automatic repairs applied to provider output",
	}, []string{"kind"})

	aiFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Subsystem: "ai",
		Name:      "fallbacks_total",
		Help:      "Number of evaluations that ended with the default result",
	}, []string{"reason"})
)
