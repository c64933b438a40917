package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLength_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in        string
		wantLimit int
		wantErr   bool
	}{
		{`5`, 5, false},
		{`"3"`, 3, false},
		{`"all"`, 50, false},
		{`0`, 50, false},
		{`null`, 10, false},
		{`""`, 10, false},
		{`-2`, 0, true},
		{`"many"`, 0, true},
		{`500`, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var l Length
			require.NoError(t, json.Unmarshal([]byte(tt.in), &l))
			got, err := l.Limit(50)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLength)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, got)
		})
	}
}

func TestLength_MissingFieldDefaults(t *testing.T) {
	var req LeaderboardRequest
	require.NoError(t, json.Unmarshal([]byte(`{"map":"Impact","difficulty":"Hard"}`), &req))
	n, err := req.Length.Limit(100)
	require.NoError(t, err)
	assert.Equal(t, DefaultLength, n)
}

func TestParseLength(t *testing.T) {
	assert.True(t, ParseLength("ALL").All())
	n, _ := ParseLength("x").Limit(100)
	assert.Equal(t, DefaultLength, n)
	n, _ = ParseLength("-1").Limit(100)
	assert.Equal(t, DefaultLength, n)
	n, _ = ParseLength("25").Limit(100)
	assert.Equal(t, 25, n)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "pbs/123.json", RecordKey("123"))
	assert.Equal(t, "leaderboards/Impact_Hard.json", SnapshotKey("Impact", "Hard"))
	assert.Equal(t, "leaderboards/Karman_Station_Hard.json", SnapshotKeyForCategory("Karman_Station-Hard"))

	m, d := SplitCategory("Impact-Hard", "Medium")
	assert.Equal(t, "Impact", m)
	assert.Equal(t, "Hard", d)
	m, d = SplitCategory("Impact", "Medium")
	assert.Equal(t, "Impact", m)
	assert.Equal(t, "Medium", d)
}

func TestResult_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Ok([]int{1}))
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(out))

	out, err = json.Marshal(NotFound[[]int]())
	require.NoError(t, err)
	assert.Equal(t, `null`, string(out))

	out, err = json.Marshal(Failed[[]int](ErrUnknownMap))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"unknown map"}`, string(out))
}
