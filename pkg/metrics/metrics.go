package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	TelemetryFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "telemetry_flushed_events_total", Help: "Telemetry events delivered to the sink."},
	)
	TelemetryDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "telemetry_dropped_events_total", Help: "Telemetry events dropped because the queue was full."},
	)
	TelemetryFlushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "telemetry_flush_failures_total", Help: "Failed bulk writes to the telemetry sink."},
	)

	IdentityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "identity_resolutions_total", Help: "Identity resolutions by outcome."},
		[]string{"outcome"},
	)

	ShiftsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "shifts_opened_total", Help: "Cash register shifts opened."},
	)
	ShiftsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "smartbar", Name: "shifts_closed_total", Help: "Cash register shifts closed by severity."},
		[]string{"severity"},
	)
	ShiftCloseDifference = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "smartbar",
			Name:      "shift_close_difference_units",
			Help:      "Counted minus expected balance at close, in currency units.",
			Buckets:   []float64{-100, -20, -5, -1, 0, 1, 5, 20, 100},
		},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TelemetryFlushed)
	reg.MustRegister(TelemetryDropped)
	reg.MustRegister(TelemetryFlushFailures)
	reg.MustRegister(IdentityResolutions)
	reg.MustRegister(ShiftsOpened)
	reg.MustRegister(ShiftsClosed)
	reg.MustRegister(ShiftCloseDifference)
}
