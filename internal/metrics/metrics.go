// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leaderboard"

// Metrics records service activity. A nil *Metrics records nothing.
type Metrics struct {
	submissions     *prometheus.CounterVec
	commitAttempts  *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	boardsServed    *prometheus.CounterVec
	steamChecks     *prometheus.CounterVec
	snapshotRebuild prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Processed time submissions by outcome.",
		}, []string{"outcome"}),
		commitAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_attempts_total",
			Help:      "Document commits by result.",
		}, []string{"result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_seconds",
			Help:      "Latency of document store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		boardsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boards_served_total",
			Help:      "Leaderboards generated by result.",
		}, []string{"result"}),
		steamChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steam_ticket_checks_total",
			Help:      "Steam auth ticket validations by result.",
		}, []string{"result"}),
		snapshotRebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_rebuild_seconds",
			Help:      "Duration of full snapshot rebuilds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(
		m.submissions,
		m.commitAttempts,
		m.storeLatency,
		m.boardsServed,
		m.steamChecks,
		m.snapshotRebuild,
	)
	return m
}

// Submission counts a processed submission.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// CommitAttempt counts a commit with result "ok", "conflict" or "error".
func (m *Metrics) CommitAttempt(result string) {
	if m == nil {
		return
	}
	m.commitAttempts.WithLabelValues(result).Inc()
}

// ObserveStore records how long a store operation took.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// BoardServed counts a generated leaderboard.
func (m *Metrics) BoardServed(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.boardsServed.WithLabelValues(result).Inc()
}

// SteamCheck counts a ticket validation.
func (m *Metrics) SteamCheck(result string) {
	if m == nil {
		return
	}
	m.steamChecks.WithLabelValues(result).Inc()
}

// SnapshotRebuild records a full rebuild's duration.
func (m *Metrics) SnapshotRebuild(start time.Time) {
	if m == nil {
		return
	}
	m.snapshotRebuild.Observe(time.Since(start).Seconds())
}
