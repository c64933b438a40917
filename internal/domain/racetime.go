package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RaceTime is a lap time as stored in a document. Most documents hold integer
// milliseconds, older ones hold display strings such as "1:23.456"; the
// original form is kept so rewriting a document does not change untouched
// values.
type RaceTime struct {
	ms     int64
	raw    string
	isText bool
	// outOfRange marks a stored number that does not fit in int64.
	outOfRange bool
}

// MillisTime returns a RaceTime holding ms milliseconds.
func MillisTime(ms int64) RaceTime {
	return RaceTime{ms: ms, raw: strconv.FormatInt(ms, 10)}
}

// TextTime returns a RaceTime holding a display string.
func TextTime(s string) RaceTime {
	return RaceTime{raw: s, isText: true}
}

// Millis returns the time in milliseconds. ok is false when the stored value
// cannot be parsed, is negative or is out of range.
func (t RaceTime) Millis() (ms int64, ok bool) {
	if !t.isText {
		if t.outOfRange || t.ms < 0 {
			return 0, false
		}
		return t.ms, true
	}
	ms, err := ParseTime(t.raw)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// IsZero reports whether the time is empty or zero. Such values never rank.
func (t RaceTime) IsZero() bool {
	if t.isText {
		return strings.TrimSpace(t.raw) == ""
	}
	return t.ms == 0 && !t.outOfRange
}

func (t RaceTime) String() string {
	return t.raw
}

// MarshalJSON writes the value back in its original form.
func (t RaceTime) MarshalJSON() ([]byte, error) {
	if t.isText {
		return json.Marshal(t.raw)
	}
	if t.raw == "" {
		return []byte(strconv.FormatInt(t.ms, 10)), nil
	}
	return []byte(t.raw), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (t *RaceTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextTime(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTime, data)
	}
	if i, err := n.Int64(); err == nil {
		*t = RaceTime{ms: i, raw: n.String()}
		return nil
	}
	f, err := n.Float64()
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %s", ErrInvalidTime, data)
	}
	ms, ok := floatMillis(f)
	if err != nil {
		ok = false
	}
	*t = RaceTime{ms: ms, raw: n.String(), outOfRange: !ok}
	return nil
}

// floatMillis truncates f to whole milliseconds. ok is false when f is not
// finite or does not fit in int64.
func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ParseTime converts "mm:ss.fff", "ss.fff" or "ss" into milliseconds. The
// fraction is right-padded, so "1.5" is 1500ms. Only the first three
// fractional digits are used. Empty input is 0.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var minutes int64
	rest := s
	if before, after, found := strings.Cut(s, ":"); found {
		m, err := parseDigits(before)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		minutes = m
		rest = after
	}

	secPart, fracPart, hasFrac := strings.Cut(rest, ".")
	seconds, err := parseDigits(secPart)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	var millis int64
	if hasFrac && fracPart != "" {
		if len(fracPart) > 3 {
			fracPart = fracPart[:3]
		}
		fracPart += strings.Repeat("0", 3-len(fracPart))
		millis, err = parseDigits(fracPart)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}

	ms, ok := addScaled(millis, seconds, 1000)
	if ok {
		ms, ok = addScaled(ms, minutes, 60_000)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTime, s)
	}
	return ms, nil
}

// addScaled returns base + n*unit for non-negative inputs, or ok=false when
// the result does not fit in int64.
func addScaled(base, n, unit int64) (int64, bool) {
	if n > (math.MaxInt64-base)/unit {
		return 0, false
	}
	return base + n*unit, true
}

func parseDigits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidTime
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidTime
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// FormatSeconds renders ms as seconds with three decimals, e.g. "12.500".
func FormatSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}
