package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Absolute layouts carry a date; clock layouts are anchored to a reference day.
var (
	absoluteLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
	}
	clockLayouts = []string{
		"15:04:05",
		"15:04",
		"03:04:05 PM",
		"3:04:05 PM",
		"03:04 PM",
		"3:04 PM",
		"3:04PM",
	}
)

// ParseTimestamp parses a punch timestamp. Layouts without a zone are read in
// loc; clock-only layouts are placed on ref's calendar day in loc.
func ParseTimestamp(s string, ref time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTimestamp)
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range absoluteLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	upper := strings.ToUpper(s)
	day := ref.In(loc)
	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, upper)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// FormatClock renders t as a 24-hour HH:MM:SS clock.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04:05")
}

// FormatClock12 renders t as a 12-hour clock, e.g. "01:05:00 PM".
func FormatClock12(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("03:04:05 PM")
}

// FormatDuration renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	d = d.Truncate(time.Second)
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	sec := int64(d % time.Minute / time.Second)
	out := fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	if neg {
		return "-" + out
	}
	return out
}
