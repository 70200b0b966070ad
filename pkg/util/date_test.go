package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeUnixMillis(t *testing.T) {
	ms := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).UnixMilli()
	got, ok := ParseTime(strconv.FormatInt(ms, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UnixMilli() != ms {
		t.Fatalf("unexpected ms %v", got.UnixMilli())
	}
}

func TestStartOfDayUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	// 2024-10-11 03:00 at UTC+7 is still 2024-10-10 in UTC.
	in := time.Date(2024, 10, 11, 3, 0, 0, 0, loc)
	got := StartOfDayUTC(in)
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	b := time.Date(2024, 10, 10, 23, 59, 59, 999e6, time.UTC).UnixMilli()
	c := time.Date(2024, 10, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	if !SameUTCDay(a, b) {
		t.Fatalf("expected same day")
	}
	if SameUTCDay(b, c) {
		t.Fatalf("expected different days")
	}
}
