// Package metrics provides Prometheus instrumentation for the guard
// service. It exposes counters for submission verdicts and classifier
// rejections, and gauges for the block registry and audit log sizes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts guarded submission checks, labeled by the
	// verdict: "ok", "bot", "rate_limited", or "blocked".
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hobbyhub_guard_submissions_total",
		Help: "Total number of submission checks by verdict",
	}, []string{"verdict"})

	// ClassifierRejections counts bot verdicts from the heuristic
	// classifier, labeled by the rule that fired.
	ClassifierRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hobbyhub_guard_classifier_rejections_total",
		Help: "Total number of classifier bot verdicts by reason",
	}, []string{"reason"})

	// RateLimitDenials counts submissions rejected by the cooldown,
	// labeled by action key.
	RateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hobbyhub_guard_ratelimit_denials_total",
		Help: "Total number of rate-limited submissions by action",
	}, []string{"action"})

	// ActiveBlocks tracks the number of unexpired block entries as of the
	// last registry read.
	ActiveBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hobbyhub_guard_active_blocks",
		Help: "Current number of active fingerprint blocks",
	})

	// AuditEntries tracks the audit log length as of the last write.
	AuditEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hobbyhub_guard_audit_entries",
		Help: "Current number of entries in the suspicious activity log",
	})

	// EnvironmentFlags counts pre-flight environment checks that tripped,
	// labeled by signal: "bot_ua", "headless_canvas", "missing_webgl".
	EnvironmentFlags = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hobbyhub_guard_environment_flags_total",
		Help: "Total number of environment checks flagged by signal",
	}, []string{"signal"})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		ClassifierRejections,
		RateLimitDenials,
		ActiveBlocks,
		AuditEntries,
		EnvironmentFlags,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
