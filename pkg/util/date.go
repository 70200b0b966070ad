package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, unix milliseconds and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e11 { // ms
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// StartOfDayUTC returns midnight (UTC) of the calendar day containing t.
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDayUTCMillis is StartOfDayUTC for unix-millisecond timestamps.
func StartOfDayUTCMillis(ms int64) int64 {
	return StartOfDayUTC(time.UnixMilli(ms)).UnixMilli()
}

// SameUTCDay reports whether both unix-millisecond timestamps fall on the same UTC day.
func SameUTCDay(aMs, bMs int64) bool {
	return StartOfDayUTCMillis(aMs) == StartOfDayUTCMillis(bMs)
}
