package internal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Precision int

const (
	PrecisionHour Precision = iota + 1
	PrecisionMinute
	PrecisionSecond
)

type layoutPair struct {
	compact   string
	canonical string
}

var layouts = map[Precision]layoutPair{
	PrecisionSecond: {compact: "20060102150405", canonical: "2006-01-02 15:04:05"},
	PrecisionMinute: {compact: "200601021504", canonical: "2006-01-02 15:04"},
	PrecisionHour:   {compact: "2006010215", canonical: "2006-01-02 15"},
}

func (p Precision) String() string {
	switch p {
	case PrecisionSecond:
		return "second"
	case PrecisionMinute:
		return "minute"
	case PrecisionHour:
		return "hour"
	default:
		return "unknown"
	}
}

// Timestamp is a wall-clock capture time that remembers the precision it
// was recorded with, so "2025-04-29 13:31" round-trips without gaining
// a seconds field.
type Timestamp struct {
	t time.Time
	p Precision
}

func NewTimestamp(t time.Time, p Precision) Timestamp {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	switch p {
	case PrecisionHour:
		wall = wall.Truncate(time.Hour)
	case PrecisionMinute:
		wall = wall.Truncate(time.Minute)
	case PrecisionSecond:
	default:
		p = PrecisionSecond
	}
	return Timestamp{t: wall, p: p}
}

// ParseStamp parses the compact digit form found in capture filenames.
// Only 14, 12 and 10 digit stamps are recognized.
func ParseStamp(digits string) (Timestamp, error) {
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Timestamp{}, fmt.Errorf("%w: %q contains non-digits", ErrBadTimestamp, digits)
		}
	}

	var p Precision
	switch len(digits) {
	case 14:
		p = PrecisionSecond
	case 12:
		p = PrecisionMinute
	case 10:
		p = PrecisionHour
	default:
		return Timestamp{}, fmt.Errorf("%w: %q has %d digits", ErrBadTimestamp, digits, len(digits))
	}

	t, err := time.Parse(layouts[p].compact, digits)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	return Timestamp{t: t, p: p}, nil
}

// ParseTimestamp parses the canonical "YYYY-MM-DD HH[:MM[:SS]]" form.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, p := range []Precision{PrecisionSecond, PrecisionMinute, PrecisionHour} {
		layout := layouts[p].canonical
		if len(s) != len(layout) {
			continue
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
		}
		return Timestamp{t: t, p: p}, nil
	}
	return Timestamp{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// TimestampFromFilename recovers the capture time from names such as
// img_20250429_133120.jpg or img_2025042913.jpg. Everything after the
// first underscore, with further underscores removed, must be a stamp.
func TimestampFromFilename(path string) (Timestamp, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	idx := strings.Index(stem, "_")
	if idx <= 0 || idx == len(stem)-1 {
		return Timestamp{}, fmt.Errorf("%w: filename %q has no <prefix>_<stamp> form", ErrBadTimestamp, base)
	}

	digits := strings.ReplaceAll(stem[idx+1:], "_", "")
	ts, err := ParseStamp(digits)
	if err != nil {
		return Timestamp{}, fmt.Errorf("filename %q: %w", base, err)
	}
	return ts, nil
}

// CaptureFilename builds a filename that TimestampFromFilename accepts at
// second precision.
func CaptureFilename(prefix string, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%s_%s%s", prefix, at.Format("20060102"), at.Format("150405"), ext)
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.t.Format(layouts[t.p].canonical)
}

func (t Timestamp) Time() time.Time      { return t.t }
func (t Timestamp) Precision() Precision { return t.p }
func (t Timestamp) IsZero() bool         { return t.p == 0 || t.t.IsZero() }

func (t Timestamp) Before(o Timestamp) bool { return t.t.Before(o.t) }
func (t Timestamp) Equal(o Timestamp) bool  { return t.t.Equal(o.t) && t.p == o.p }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
