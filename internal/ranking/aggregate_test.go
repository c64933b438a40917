package ranking

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgracers-leaderboard/internal/domain"
)

func record(id, name string, times map[[2]string]int64) domain.PlayerRecord {
	var bt domain.BestTimes
	for k, ms := range times {
		t := domain.MillisTime(ms)
		bt = bt.Set(k[0], k[1], &t)
	}
	return domain.PlayerRecord{PlatformID: id, Platform: "steam", DisplayName: name, BestTimes: domain.OrderBestTimes(bt)}
}

func sampleRecords() []domain.PlayerRecord {
	return []domain.PlayerRecord{
		record("1", "Alice", map[[2]string]int64{{"Impact", "Hard"}: 42000, {"Silo", "Easy"}: 30000}),
		record("2", "Bob", map[[2]string]int64{{"Impact", "Hard"}: 40000}),
		record("3", "Carol", map[[2]string]int64{{"Impact", "Hard"}: 45000, {"Moonbase", "Medium"}: 61000}),
	}
}

func TestAggregate_Batch(t *testing.T) {
	reqs := []domain.LeaderboardRequest{
		{Map: "impact", Difficulty: "hard", Length: domain.TopN(2)},
		{Map: "club silo", Difficulty: "Easy"},
		{Map: "", Difficulty: "Easy"},
		{Map: "Nowhere", Difficulty: "Easy"},
		{Map: "Impact", Difficulty: "Hard", Length: domain.TopN(-1)},
		{Map: "moonbase", Difficulty: "medium"},
	}

	agg := Aggregate(sampleRecords(), reqs)
	require.Len(t, agg.Boards, len(reqs))

	impact := agg.Boards[0]
	assert.Equal(t, "Impact", impact.Map)
	assert.Equal(t, "Hard", impact.Difficulty)
	require.True(t, impact.Result.IsOK())
	if diff := cmp.Diff([]string{"2", "1"}, ids(impact.Result.Value)); diff != "" {
		t.Errorf("impact board mismatch (-want +got):\n%s", diff)
	}

	silo := agg.Boards[1]
	assert.Equal(t, "Silo", silo.Map)
	require.True(t, silo.Result.IsOK())
	assert.Equal(t, []string{"1"}, ids(silo.Result.Value))

	assert.ErrorIs(t, agg.Boards[2].Result.Err, domain.ErrMissingFields)
	assert.ErrorIs(t, agg.Boards[3].Result.Err, domain.ErrUnknownMap)
	assert.ErrorIs(t, agg.Boards[4].Result.Err, domain.ErrInvalidLength)

	moon := agg.Boards[5]
	assert.Equal(t, "Moonbase", moon.Map)
	require.True(t, moon.Result.IsOK())
	assert.Equal(t, []string{"3"}, ids(moon.Result.Value))
}

func TestAggregate_KnownMapWithoutTimesIsEmpty(t *testing.T) {
	agg := Aggregate(sampleRecords(), []domain.LeaderboardRequest{{Map: "Crag", Difficulty: "Easy"}})

	res, ok := agg.Get("Crag", "Easy")
	require.True(t, ok)
	require.True(t, res.IsOK())
	assert.NotNil(t, res.Value)
	assert.Empty(t, res.Value)
}

func TestAggregate_ErrorsDoNotAffectOtherRequests(t *testing.T) {
	good := []domain.LeaderboardRequest{{Map: "Impact", Difficulty: "Hard"}}
	withBad := append([]domain.LeaderboardRequest{{Map: "Nowhere", Difficulty: "Hard"}}, good...)

	alone := Aggregate(sampleRecords(), good)
	mixed := Aggregate(sampleRecords(), withBad)

	a, _ := alone.Get("Impact", "Hard")
	b, _ := mixed.Get("Impact", "Hard")
	if diff := cmp.Diff(ids(a.Value), ids(b.Value)); diff != "" {
		t.Errorf("batch neighbours changed the board (-alone +mixed):\n%s", diff)
	}
}

func TestAggregation_MarshalJSON(t *testing.T) {
	agg := Aggregate(sampleRecords(), []domain.LeaderboardRequest{
		{Map: "Impact", Difficulty: "Hard", Length: domain.TopN(1)},
		{Map: "Nowhere", Difficulty: "Easy"},
	})

	data, err := json.Marshal(agg)
	require.NoError(t, err)

	var got map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Contains(t, string(got["Impact"]["Hard"]), `"platformId":"2"`)
	assert.Contains(t, string(got["Nowhere"]["Easy"]), `"error"`)

	flat, err := json.Marshal(agg.Flat())
	require.NoError(t, err)
	var flatGot map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(flat, &flatGot))
	assert.Contains(t, flatGot, "Impact-Hard")
	assert.Contains(t, flatGot, "Nowhere-Easy")
}
