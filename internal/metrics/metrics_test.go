package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of a gathered counter family with the given
// label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission("new_record")
	m.Submission("new_record")
	m.CommitAttempt("conflict")
	m.BoardServed(false)
	m.ObserveStore("get", time.Now())

	assert.Equal(t, 2.0, counterValue(t, reg, "leaderboard_submissions_total", "new_record"))
	assert.Equal(t, 1.0, counterValue(t, reg, "leaderboard_commit_attempts_total", "conflict"))
	assert.Equal(t, 1.0, counterValue(t, reg, "leaderboard_boards_served_total", "error"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Submission("rejected")
		m.CommitAttempt("ok")
		m.ObserveStore("get", time.Now())
		m.BoardServed(true)
		m.SteamCheck("valid")
		m.SnapshotRebuild(time.Now())
	})
}
