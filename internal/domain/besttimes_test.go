package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msPtr(ms int64) *RaceTime {
	t := MillisTime(ms)
	return &t
}

func TestBestTimes_PreservesDocumentOrder(t *testing.T) {
	doc := `{"Stadium":{"Hard":900,"Easy":null},"Abyss":{"Medium":"1:02.5"}}`
	var bt BestTimes
	require.NoError(t, json.Unmarshal([]byte(doc), &bt))

	out, err := json.Marshal(bt)
	require.NoError(t, err)
	assert.Equal(t, `{"Stadium":{"Hard":900,"Easy":null},"Abyss":{"Medium":"1:02.5"}}`, string(out))
	assert.True(t, bt.Has("Stadium", "Easy"))
	assert.Nil(t, bt.Get("Stadium", "Easy"))
	assert.NotNil(t, bt.Lookup("stadium", "HARD"))
}

func TestOrderBestTimes(t *testing.T) {
	var bt BestTimes
	bt = bt.Set("Zeta", "Hard", msPtr(1)).
		Set("Custom", "Medium", msPtr(2)).
		Set("Stadium", "Hard", msPtr(3)).
		Set("Stadium", "Insane", msPtr(4)).
		Set("Stadium", "Easy", msPtr(5)).
		Set("Stadium", "Brutal", msPtr(6)).
		Set("Abyss", "Medium", nil).
		Set("Impact", "Easy", msPtr(7))

	ordered := OrderBestTimes(bt)
	out, err := json.Marshal(ordered)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Abyss":{"Medium":null},"Impact":{"Easy":7},"Stadium":{"Easy":5,"Hard":3,"Brutal":6,"Insane":4},"Custom":{"Medium":2},"Zeta":{"Hard":1}}`,
		string(out))

	// input untouched
	assert.Equal(t, "Zeta", bt.Maps()[0].Map)
}

func TestOrderBestTimes_Idempotent(t *testing.T) {
	var bt BestTimes
	for _, m := range []string{"Silo", "Moon", "Abyss", "Karman_Station", "Alpha"} {
		for _, d := range []string{"Hard", "Zen", "Easy", "Medium"} {
			bt = bt.Set(m, d, msPtr(int64(len(m)*len(d))))
		}
	}
	once := OrderBestTimes(bt)
	twice := OrderBestTimes(once)
	a, err := json.Marshal(once)
	require.NoError(t, err)
	b, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBestTimes_DuplicateKeysOverwrite(t *testing.T) {
	var bt BestTimes
	require.NoError(t, json.Unmarshal([]byte(`{"Impact":{"Hard":10,"Hard":5}}`), &bt))
	assert.Len(t, bt.Maps()[0].Difficulties, 1)
	ms, _ := bt.Get("Impact", "Hard").Millis()
	assert.Equal(t, int64(5), ms)
}

func TestBestTimes_RejectsNonObject(t *testing.T) {
	var bt BestTimes
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &bt))
}

func TestPlayerRecord_RoundTrip(t *testing.T) {
	doc := `{"userId":"7656","platform":"steam","displayName":"Racer","bestTimes":{"Impact":{"Hard":12500}}}`
	var rec PlayerRecord
	require.NoError(t, json.Unmarshal([]byte(doc), &rec))
	assert.Equal(t, "7656", rec.PlatformID)
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(out))
}
