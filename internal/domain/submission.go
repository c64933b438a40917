package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Submission is a finished run reported for a player.
type Submission struct {
	PlatformID string
	Platform   string
	Map        string
	Difficulty string
	TimeMs     int64
	// AuthTicket is the platform session ticket, required for Steam.
	AuthTicket string
}

// submissionFields maps lower-cased request keys to canonical field names.
var submissionFields = map[string]string{
	"platform":       "platform",
	"platformuserid": "platformUserId",
	"map":            "map",
	"difficulty":     "difficulty",
	"timems":         "timeMs",
}

// UnmarshalJSON reads a submission body. Keys match case-insensitively, so
// "timems" and "platformuserid" are accepted. timeMs may be a number or a
// string.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if canonical, ok := submissionFields[strings.ToLower(k)]; ok {
			fields[canonical] = v
		}
	}

	var out Submission
	for name, dst := range map[string]*string{
		"platform":       &out.Platform,
		"platformUserId": &out.PlatformID,
		"map":            &out.Map,
		"difficulty":     &out.Difficulty,
	} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		val, err := stringField(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRequest, name, err)
		}
		*dst = val
	}

	if v, ok := fields["timeMs"]; ok {
		ms, err := parseTimeField(v)
		if err != nil {
			return err
		}
		out.TimeMs = ms
	}

	*s = out
	return nil
}

// MarshalJSON writes the canonical field names. The auth ticket is never
// serialized.
func (s Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Platform   string `json:"platform"`
		PlatformID string `json:"platformUserId"`
		Map        string `json:"map"`
		Difficulty string `json:"difficulty"`
		TimeMs     int64  `json:"timeMs"`
	}{s.Platform, s.PlatformID, s.Map, s.Difficulty, s.TimeMs})
}

// stringField accepts strings and bare numbers, since platform ids are
// sometimes sent unquoted.
func stringField(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if bytes.Equal(v, []byte("null")) {
		return "", nil
	}
	if len(v) > 0 && v[0] == '"' {
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func parseTimeField(v json.RawMessage) (int64, error) {
	s, err := stringField(v)
	if err != nil {
		return 0, fmt.Errorf("%w: timeMs: %v", ErrInvalidTime, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	if strings.ContainsAny(s, ":") {
		return ParseTime(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timeMs %q", ErrInvalidTime, s)
	}
	ms, ok := floatMillis(f)
	if !ok {
		return 0, fmt.Errorf("%w: timeMs %q is out of range", ErrInvalidTime, s)
	}
	return ms, nil
}

// Normalize canonicalizes map and difficulty and checks required fields.
func (s Submission) Normalize() (Submission, error) {
	out := s
	out.Platform = strings.TrimSpace(s.Platform)
	out.PlatformID = strings.TrimSpace(s.PlatformID)
	m, mapOK := NormalizeMap(s.Map)
	d, diffOK := NormalizeDifficulty(s.Difficulty)
	out.Map, out.Difficulty = m, d

	if out.Platform == "" || out.PlatformID == "" || !mapOK || !diffOK {
		return out, ErrMissingFields
	}
	if s.TimeMs <= 0 {
		return out, fmt.Errorf("%w: timeMs must be positive", ErrInvalidTime)
	}
	if strings.ContainsAny(out.PlatformID, "/\\.") {
		return out, fmt.Errorf("%w: bad platformUserId", ErrInvalidRequest)
	}
	return out, nil
}

// SubmissionOutcome classifies an audited submission.
type SubmissionOutcome string

const (
	OutcomeNewRecord SubmissionOutcome = "new_record"
	OutcomeImproved  SubmissionOutcome = "improved"
	OutcomeRejected  SubmissionOutcome = "rejected"
)

// SubmissionEvent is an audit record of one processed submission.
type SubmissionEvent struct {
	PlatformID string                 `json:"platformId"`
	Platform   string                 `json:"platform"`
	Map        string                 `json:"map"`
	Difficulty string                 `json:"difficulty"`
	TimeMs     int64                  `json:"timeMs"`
	Outcome    SubmissionOutcome      `json:"outcome"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// RecordUpdate announces a new personal best to live subscribers.
type RecordUpdate struct {
	Map         string    `json:"map"`
	Difficulty  string    `json:"difficulty"`
	PlatformID  string    `json:"platformId"`
	DisplayName string    `json:"displayName"`
	TimeMs      int64     `json:"timeMs"`
	PreviousMs  *int64    `json:"previousMs"`
	Position    int       `json:"position,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
