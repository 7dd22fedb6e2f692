// Package timex formats and parses the ISO-8601 timestamps used on the wire.
package timex

import (
	"errors"
	"strings"
	"time"
)

// Layout is the wire format: UTC with microseconds and a Z suffix.
const Layout = "2006-01-02T15:04:05.000000Z"

var ErrEmpty = errors.New("empty timestamp")

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// Zone-less values are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Now returns the current UTC time truncated to the store's microsecond resolution.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate converts t to UTC at microsecond resolution.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// FormatPtr formats t, returning nil for a nil time.
func FormatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Format(*t)
	return &s
}

// Parse accepts RFC 3339 timestamps with or without fractional seconds and
// zone-less ISO timestamps. A "+hh:mm" offset whose plus sign was decoded to a
// space by query-string handling is repaired before parsing.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	s = repairOffset(s)

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func repairOffset(s string) string {
	tpos := strings.IndexByte(s, 'T')
	i := strings.LastIndexByte(s, ' ')
	if tpos < 0 || i <= tpos {
		return s
	}
	tail := s[i+1:]
	if len(tail) == 5 && tail[2] == ':' {
		return s[:i] + "+" + tail
	}
	return s
}
