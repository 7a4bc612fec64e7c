package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestUpdateTimezoneShiftsWallClock(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	cal.Timezone = "UTC"

	// 18:00 UTC stays 18:00 on the wall clock in New York, i.e. the instant
	// moves later by the offset difference.
	start := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
	ev := mustAdd(t, cal, draftAt("raid", start))
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	shifted, ok, err := cal.UpdateTimezone("America/New_York", now)
	if err != nil || !ok {
		t.Fatalf("UpdateTimezone = ok=%v, err=%v", ok, err)
	}
	if cal.Timezone != "America/New_York" {
		t.Fatalf("timezone = %q", cal.Timezone)
	}
	if len(shifted) != 1 || shifted[0].ID != ev.ID {
		t.Fatalf("shifted events = %+v", shifted)
	}

	nyc, _ := time.LoadLocation("America/New_York")
	got := shifted[0].Start.In(nyc)
	if got.Hour() != 18 || got.Minute() != 0 {
		t.Fatalf("wall clock not preserved: %v", got)
	}
	if end := shifted[0].End.Sub(shifted[0].Start); end != time.Hour {
		t.Fatalf("duration changed: %v", end)
	}
}

func TestUpdateTimezoneRejectsPastShift(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	cal.Timezone = "UTC"

	now := time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC)
	// One hour out. Shifting to Tokyo (+9) moves the instant eight hours
	// into the past.
	start := now.Add(time.Hour)
	mustAdd(t, cal, draftAt("soon", start))

	shifted, ok, err := cal.UpdateTimezone("Asia/Tokyo", now)
	if err != nil {
		t.Fatalf("UpdateTimezone error: %v", err)
	}
	if ok {
		t.Fatal("expected rejection when earliest event would land in the past")
	}
	if shifted != nil {
		t.Fatalf("rejected change returned events: %+v", shifted)
	}
	if cal.Timezone != "UTC" {
		t.Fatalf("timezone changed on rejection: %q", cal.Timezone)
	}
	if !cal.Events[0].Start.Equal(start) {
		t.Fatalf("event mutated on rejection: %v", cal.Events[0].Start)
	}
}

func TestUpdateTimezoneInvalidZone(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	_, _, err := cal.UpdateTimezone("Not/AZone", time.Now())
	if !errors.Is(err, ErrInvalidZone) {
		t.Fatalf("err = %v, want ErrInvalidZone", err)
	}
}

func TestUpdateTimezoneEmptyCalendar(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	shifted, ok, err := cal.UpdateTimezone("Europe/Berlin", time.Now())
	if err != nil || !ok {
		t.Fatalf("UpdateTimezone = ok=%v, err=%v", ok, err)
	}
	if len(shifted) != 0 {
		t.Fatalf("empty calendar returned events: %+v", shifted)
	}
	if cal.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", cal.Timezone)
	}
}
