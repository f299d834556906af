// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan submissions by outcome: ok, duplicate,
	// decode_error, not_found, ambiguous, stale, sink_error.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_scans_total",
		Help: "Scan submissions by outcome.",
	}, []string{"outcome"})

	// FallbackMatchesTotal counts resolutions that succeeded by name
	// instead of id, a signal that stale codes are circulating.
	FallbackMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_fallback_matches_total",
		Help: "Resolutions that matched by full name after an id miss.",
	})

	// MarksTotal counts committed attendance writes by kind and status.
	MarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_marks_total",
		Help: "Committed attendance records by kind and status.",
	}, []string{"kind", "status"})
)
