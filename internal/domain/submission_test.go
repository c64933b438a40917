package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmission_UnmarshalCaseInsensitiveKeys(t *testing.T) {
	var s Submission
	err := json.Unmarshal([]byte(`{"platform":"steam","platformuserid":"7656","MAP":"club silo","Difficulty":"hard","timems":12500,"extra":true}`), &s)
	require.NoError(t, err)

	assert.Equal(t, "steam", s.Platform)
	assert.Equal(t, "7656", s.PlatformID)
	assert.Equal(t, "club silo", s.Map)
	assert.Equal(t, "hard", s.Difficulty)
	assert.Equal(t, int64(12500), s.TimeMs)
}

func TestSubmission_TimeForms(t *testing.T) {
	tests := []struct {
		body    string
		want    int64
		wantErr bool
	}{
		{body: `{"timeMs":12500}`, want: 12500},
		{body: `{"timeMs":"12500"}`, want: 12500},
		{body: `{"timeMs":12500.9}`, want: 12500},
		{body: `{"timeMs":"1:02.500"}`, want: 62500},
		{body: `{"timeMs":"fast"}`, wantErr: true},
		{body: `{"timeMs":"538030035483195256:00"}`, wantErr: true},
		{body: `{"timeMs":"99999999999999999999"}`, wantErr: true},
		{body: `{"timeMs":1e30}`, wantErr: true},
		{body: `{"timeMs":null}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var s Submission
			err := json.Unmarshal([]byte(tt.body), &s)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.TimeMs)
		})
	}
}

func TestSubmission_NumericPlatformID(t *testing.T) {
	var s Submission
	require.NoError(t, json.Unmarshal([]byte(`{"platformUserId":76561198000000001}`), &s))
	assert.Equal(t, "76561198000000001", s.PlatformID)
}

func TestSubmission_Normalize(t *testing.T) {
	s := Submission{Platform: " steam ", PlatformID: "1", Map: "karman station", Difficulty: "EASY", TimeMs: 9000}
	got, err := s.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "steam", got.Platform)
	assert.Equal(t, "Karman_Station", got.Map)
	assert.Equal(t, "Easy", got.Difficulty)

	_, err = Submission{Platform: "steam", PlatformID: "1", Difficulty: "Easy", TimeMs: 1}.Normalize()
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = Submission{Platform: "steam", PlatformID: "1", Map: "Silo", Difficulty: "Easy"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = Submission{Platform: "steam", PlatformID: "../x", Map: "Silo", Difficulty: "Easy", TimeMs: 1}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmission_MarshalOmitsTicket(t *testing.T) {
	data, err := json.Marshal(Submission{Platform: "steam", PlatformID: "1", Map: "Silo", Difficulty: "Easy", TimeMs: 5, AuthTicket: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"platformUserId":"1"`)
}
