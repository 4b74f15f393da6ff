package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "gateway",
			Name:      "generations_total",
			Help:      "Completed generation attempts by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmgate",
			Subsystem: "gateway",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of the generation phase",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"model"},
	)

	busyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "gateway",
			Name:      "busy_total",
			Help:      "Retryable busy rejections by saturation kind",
		},
		[]string{"reason"},
	)

	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llmgate",
			Subsystem: "gateway",
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for an admission lease",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, busyTotal, admissionWait)
}
