// Package metrics holds the Prometheus collectors for the transcription service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "talk2text"

var (
	// pipelineRequestsTotal counts pipeline runs by terminal stage and reason.
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Total number of upload pipeline runs by terminal stage",
		},
		[]string{"stage", "reason"},
	)

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Histogram of upload pipeline duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	recognizerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_requests_total",
			Help:      "Total number of speech recognizer calls",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	recognizerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognizer_duration_seconds",
			Help:      "Duration of speech recognizer calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	historyCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_lookups_total",
			Help:      "History cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error, bypass
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		pipelineRequestsTotal,
		pipelineDuration,
		recognizerRequestsTotal,
		recognizerDuration,
		historyCacheLookups,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func ObservePipeline(stage, reason string, d time.Duration) {
	pipelineRequestsTotal.WithLabelValues(stage, reason).Inc()
	pipelineDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func ObserveRecognizer(provider string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	recognizerRequestsTotal.WithLabelValues(provider, status).Inc()
	recognizerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func ObserveCacheLookup(result string) {
	historyCacheLookups.WithLabelValues(result).Inc()
}
