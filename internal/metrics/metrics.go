// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for RelationshipApplications.
const (
	OutcomeOK       = "ok"
	OutcomeUnknown  = "unknown"
	OutcomeInvalid  = "invalid_param"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	// Relationship engine metrics
	RelationshipApplications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_relationship_applications_total",
		Help: "Relationship applications by relationship name and outcome",
	}, []string{"relationship", "outcome"})

	RelationshipDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "questlog_relationship_duration_seconds",
		Help:    "Time spent applying a relationship, including its transaction",
		Buckets: prometheus.DefBuckets,
	}, []string{"relationship"})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_http_requests_total",
		Help: "HTTP requests by route pattern and status code",
	}, []string{"route", "code"})

	// Integrity audit metrics
	IntegrityIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "questlog_integrity_issues",
		Help: "Issues found by the most recent integrity audit, by code",
	}, []string{"code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
