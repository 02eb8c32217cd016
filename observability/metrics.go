// Package observability holds the process-wide metrics and the logger
// constructor.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sporting",
		Subsystem: "ingest",
		Name:      "total",
		Help:      "Uploaded activity files by sport and outcome.",
	}, []string{"sport", "outcome"})
	ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sporting",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Time from upload to committed rows.",
		Buckets:   prometheus.DefBuckets,
	})
	ingestPoints = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sporting",
		Subsystem: "ingest",
		Name:      "points",
		Help:      "Point rows written per activity.",
		Buckets:   prometheus.ExponentialBuckets(60, 2, 10),
	})
	bootstrapAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sporting",
		Subsystem: "bootstrap",
		Name:      "attempts_total",
		Help:      "Schema bootstrap attempts by outcome.",
	}, []string{"outcome"})
	plansEncoded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sporting",
		Subsystem: "workout_plans",
		Name:      "encoded_total",
		Help:      "Planned workouts encoded for devices.",
	})
)

func init() {
	prometheus.MustRegister(ingestTotal, ingestDuration, ingestPoints, bootstrapAttempts, plansEncoded)
}

// RecordIngest counts one upload. Sport is empty when the file never got
// far enough to be classified.
func RecordIngest(sport, outcome string, elapsed time.Duration, points int) {
	if sport == "" {
		sport = "unknown"
	}
	ingestTotal.WithLabelValues(sport, outcome).Inc()
	if outcome != "ok" {
		return
	}
	ingestDuration.Observe(elapsed.Seconds())
	ingestPoints.Observe(float64(points))
}

// RecordBootstrapAttempt counts one schema bootstrap state change.
func RecordBootstrapAttempt(outcome string) {
	bootstrapAttempts.WithLabelValues(outcome).Inc()
}

func RecordPlanEncoded() {
	plansEncoded.Inc()
}
