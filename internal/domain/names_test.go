package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMap(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"karman station", "Karman_Station", true},
		{"KarmanStation", "Karman_Station", true},
		{"karman_station", "Karman_Station", true},
		{"  Karman ", "Karman_Station", true},
		{"club silo", "Silo", true},
		{"CLUB_SILO", "Silo", true},
		{"foregone", "Foregone_Destruction", true},
		{"Foregone Destruction", "Foregone_Destruction", true},
		{"impact", "Impact", true},
		{"STADIUM", "Stadium", true},
		{"new track", "New track", true},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeMap(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMap_AllKnownMapsRoundTrip(t *testing.T) {
	for _, m := range KnownMaps {
		got, ok := NormalizeMap(string(m))
		assert.True(t, ok)
		assert.Equal(t, string(m), got)
		assert.True(t, IsKnownMap(got))
	}
	assert.False(t, IsKnownMap("karman station"))
}

func TestNormalizeDifficulty(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"easy", "Easy", true},
		{"MEDIUM", "Medium", true},
		{" Hard ", "Hard", true},
		{"nightmare", "Nightmare", true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDifficulty(tt.raw)
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
