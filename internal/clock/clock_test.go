package clock_test

import (
	"encoding/json"
	"testing"
	"time"

	"streakline/internal/clock"
)

func TestDayOfResolvesInZone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// 23:30 UTC on Jan 1 is already Jan 2 in Seoul (UTC+9).
	instant := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	utcDay := clock.DayOf(instant, time.UTC)
	seoulDay := clock.DayOf(instant, seoul)
	if got := seoulDay.Sub(utcDay); got != 1 {
		t.Fatalf("seoul day should be one ahead of utc, got diff %d", got)
	}
	if utcDay.String() != "2024-01-01" {
		t.Fatalf("utc day = %s", utcDay)
	}
	if seoulDay.String() != "2024-01-02" {
		t.Fatalf("seoul day = %s", seoulDay)
	}
}

func TestDayOfNilZoneFallsBackToUTC(t *testing.T) {
	instant := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	if clock.DayOf(instant, nil) != clock.DayOf(instant, time.UTC) {
		t.Fatal("nil zone should behave as UTC")
	}
}

func TestDaySameDayDifferentInstants(t *testing.T) {
	morning := time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC)
	night := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	if clock.DayOf(morning, time.UTC) != clock.DayOf(night, time.UTC) {
		t.Fatal("instants on the same calendar day must map to the same day")
	}
}

func TestDayAddSub(t *testing.T) {
	d, err := clock.ParseDay("2024-02-28")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// 2024 is a leap year.
	if got := d.Add(1).String(); got != "2024-02-29" {
		t.Fatalf("add 1 = %s", got)
	}
	if got := d.Add(2).String(); got != "2024-03-01" {
		t.Fatalf("add 2 = %s", got)
	}
	if got := d.Add(30).Sub(d); got != 30 {
		t.Fatalf("sub = %d", got)
	}
}

func TestDayJSONRoundTrip(t *testing.T) {
	d, err := clock.ParseDay("2024-05-17")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2024-05-17"` {
		t.Fatalf("marshal = %s", b)
	}
	var back clock.Day
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Fatalf("round trip mismatch: %v != %v", back, d)
	}
	if err := json.Unmarshal([]byte(`"not-a-day"`), &back); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadZoneFallback(t *testing.T) {
	if clock.LoadZone("") != time.UTC {
		t.Fatal("empty name should resolve to UTC")
	}
	if clock.LoadZone("Not/AZone") != time.UTC {
		t.Fatal("unknown name should resolve to UTC")
	}
	if clock.LoadZone("Asia/Seoul") == time.UTC {
		t.Fatal("known zone should not be UTC")
	}
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := clock.Fixed(at)
	if !c.Now().Equal(at) {
		t.Fatalf("fixed clock = %v", c.Now())
	}
}
