package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestIsImprovement(t *testing.T) {
	assert.False(t, IsImprovement(ptr(1000), 1000), "ties are rejected")
	assert.True(t, IsImprovement(ptr(1000), 999))
	assert.False(t, IsImprovement(ptr(1000), 1001))
	assert.True(t, IsImprovement(nil, 5000))
}

func TestEvaluateSubmission_Scenario(t *testing.T) {
	var table BestTimes

	first := EvaluateSubmission(table, "Impact", "Hard", 12500)
	require.True(t, first.IsNewRecord)
	assert.Nil(t, first.Previous)
	ms, ok := first.Table.Get("Impact", "Hard").Millis()
	require.True(t, ok)
	assert.Equal(t, int64(12500), ms)

	second := EvaluateSubmission(first.Table, "Impact", "Hard", 13000)
	assert.False(t, second.IsNewRecord)
	require.NotNil(t, second.Previous)
	assert.Equal(t, int64(12500), *second.Previous)
	ms, _ = second.Table.Get("Impact", "Hard").Millis()
	assert.Equal(t, int64(12500), ms)
}

func TestEvaluateSubmission_OrdersAcceptedTable(t *testing.T) {
	var table BestTimes
	table = table.Set("Stadium", "Hard", msPtr(9000))

	got := EvaluateSubmission(table, "Abyss", "Easy", 4000)
	require.True(t, got.IsNewRecord)
	assert.Equal(t, "Abyss", got.Table.Maps()[0].Map)
	assert.Equal(t, "Stadium", got.Table.Maps()[1].Map)
}

func TestEvaluateSubmission_RejectedKeepsNullRow(t *testing.T) {
	var table BestTimes
	table = table.Set("Impact", "Hard", msPtr(1000))

	got := EvaluateSubmission(table, "Impact", "Hard", 1000)
	assert.False(t, got.IsNewRecord)

	got = EvaluateSubmission(table, "Crag", "Easy", 5000)
	assert.True(t, got.IsNewRecord)
	assert.True(t, got.Table.Has("Crag", "Easy"))
}

func TestEvaluateSubmission_CorruptStoredTimeCountsAsNoRecord(t *testing.T) {
	var table BestTimes
	bad := TextTime("n/a")
	table = table.Set("Impact", "Hard", &bad)

	got := EvaluateSubmission(table, "Impact", "Hard", 99999)
	assert.True(t, got.IsNewRecord)
	assert.Nil(t, got.Previous)
}
