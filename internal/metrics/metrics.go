// Package metrics provides Prometheus metrics for the align server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	AlignmentsTotal    prometheus.Counter
	ExtractedTotal     *prometheus.CounterVec
	InquiriesTotal     *prometheus.CounterVec
	SchedulerRunsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "align_requests_total",
				Help: "Total number of HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "align_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AlignmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "align_alignments_parsed_total",
				Help: "Total number of alignment texts parsed.",
			},
		),
		ExtractedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "align_extracted_items_total",
				Help: "Items extracted from alignments by kind.",
			},
			[]string{"kind"},
		),
		InquiriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "align_inquiries_generated_total",
				Help: "Inquiries generated by priority.",
			},
			[]string{"priority"},
		),
		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "align_scheduler_runs_total",
				Help: "Scheduler job runs by job and status.",
			},
			[]string{"job", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.AlignmentsTotal)
	reg.MustRegister(m.ExtractedTotal)
	reg.MustRegister(m.InquiriesTotal)
	reg.MustRegister(m.SchedulerRunsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter and observes its duration.
func (m *Metrics) RecordRequest(route string, status int, seconds float64) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordAlignment counts one parsed alignment and the items it produced.
func (m *Metrics) RecordAlignment(achievements, completedTodos, milestones, memos, risks, contextChanges int) {
	m.AlignmentsTotal.Inc()
	m.ExtractedTotal.WithLabelValues("achievement").Add(float64(achievements))
	m.ExtractedTotal.WithLabelValues("completed_todo").Add(float64(completedTodos))
	m.ExtractedTotal.WithLabelValues("milestone_progress").Add(float64(milestones))
	m.ExtractedTotal.WithLabelValues("memo").Add(float64(memos))
	m.ExtractedTotal.WithLabelValues("risk").Add(float64(risks))
	m.ExtractedTotal.WithLabelValues("context_change").Add(float64(contextChanges))
}

// RecordInquiry counts one generated inquiry.
func (m *Metrics) RecordInquiry(priority int) {
	m.InquiriesTotal.WithLabelValues(strconv.Itoa(priority)).Inc()
}

// RecordSchedulerRun counts one scheduler job execution.
func (m *Metrics) RecordSchedulerRun(job, status string) {
	m.SchedulerRunsTotal.WithLabelValues(job, status).Inc()
}
