package calendar

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func draftAt(name string, start time.Time) Draft {
	return Draft{Name: strPtr(name), Start: timePtr(start)}
}

func mustAdd(t *testing.T, cal *Calendar, d Draft) Event {
	t.Helper()
	ev, err := cal.AddEvent(d)
	if err != nil {
		t.Fatalf("AddEvent(%v) error: %v", d, err)
	}
	return ev
}

func assertSorted(t *testing.T, cal *Calendar) {
	t.Helper()
	ok := sort.SliceIsSorted(cal.Events, func(i, j int) bool {
		return cal.Events[i].Start.Before(cal.Events[j].Start)
	})
	if !ok {
		t.Fatalf("events not sorted by start: %v", cal.Events)
	}
}

func TestAddEventKeepsSortedOrder(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order on purpose.
	for _, offset := range []time.Duration{5 * time.Hour, time.Hour, 3 * time.Hour, 0, 9 * time.Hour, 2 * time.Hour} {
		mustAdd(t, cal, draftAt("ev", base.Add(offset)))
		assertSorted(t, cal)
	}
	if len(cal.Events) != 6 {
		t.Fatalf("len(events) = %d, want 6", len(cal.Events))
	}
}

func TestAddEventEqualStartTieBreak(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	first := mustAdd(t, cal, draftAt("first", start))
	second := mustAdd(t, cal, draftAt("second", start))

	// The newly inserted event precedes existing events with an equal start.
	if cal.Events[0].ID != second.ID || cal.Events[1].ID != first.ID {
		t.Fatalf("tie-break violated: got order %s, %s", cal.Events[0].Name, cal.Events[1].Name)
	}
}

func TestAddEventValidation(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if _, err := cal.AddEvent(Draft{Name: strPtr("no start")}); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("missing start: err = %v, want ErrInvalidDraft", err)
	}
	if _, err := cal.AddEvent(Draft{Start: timePtr(start)}); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("missing name: err = %v, want ErrInvalidDraft", err)
	}

	d := draftAt("backwards", start)
	d.End = timePtr(start.Add(-time.Hour))
	if _, err := cal.AddEvent(d); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("end before start: err = %v, want ErrInvalidDraft", err)
	}

	// Default end is one hour after start.
	ev := mustAdd(t, cal, draftAt("defaulted", start))
	if got := ev.End.Sub(ev.Start); got != time.Hour {
		t.Fatalf("default end offset = %v, want 1h", got)
	}
}

func TestDeleteEvent(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	ev := mustAdd(t, cal, draftAt("only", start))

	if _, err := cal.DeleteEvent(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out of range: err = %v, want ErrNotFound", err)
	}
	if _, err := cal.DeleteEvent(-1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("negative index: err = %v, want ErrNotFound", err)
	}

	deleted, err := cal.DeleteEvent(0)
	if err != nil {
		t.Fatalf("DeleteEvent error: %v", err)
	}
	if deleted.ID != ev.ID || len(cal.Events) != 0 {
		t.Fatalf("delete left calendar in bad state: %+v", cal.Events)
	}
}

func TestUpdateEventPartialSemantics(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	d := draftAt("original", start)
	d.Description = strPtr("keep me")
	d.Repeat = strPtr("weekly")
	original := mustAdd(t, cal, d)

	// Only the start moves; everything else must survive.
	newStart := start.Add(2 * time.Hour)
	updated, err := cal.UpdateEvent(0, Draft{Start: timePtr(newStart), End: timePtr(newStart.Add(time.Hour))})
	if err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}
	if updated.ID != original.ID {
		t.Fatal("update must preserve the event ID")
	}
	if updated.Name != "original" || updated.Description != "keep me" || updated.Repeat != RepeatWeekly {
		t.Fatalf("nil draft fields were not preserved: %+v", updated)
	}
	if !updated.Start.Equal(newStart) {
		t.Fatalf("start = %v, want %v", updated.Start, newStart)
	}

	// Explicit "off" clears recurrence.
	updated, err = cal.UpdateEvent(0, Draft{Repeat: strPtr("off")})
	if err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}
	if updated.Repeat != RepeatNone {
		t.Fatalf("repeat = %q, want cleared", updated.Repeat)
	}

	if _, err := cal.UpdateEvent(5, Draft{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out of range update: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateEventResorts(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, cal, draftAt("a", base))
	mustAdd(t, cal, draftAt("b", base.Add(time.Hour)))
	mustAdd(t, cal, draftAt("c", base.Add(2*time.Hour)))

	// Push the first event past the others.
	late := base.Add(6 * time.Hour)
	if _, err := cal.UpdateEvent(0, Draft{Start: timePtr(late), End: timePtr(late.Add(time.Hour))}); err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}
	assertSorted(t, cal)
	if cal.Events[2].Name != "a" {
		t.Fatalf("moved event not last: %v", cal.Events)
	}
}

func TestAdvanceOrDeleteOneShot(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	ev := mustAdd(t, cal, draftAt("one-shot", start))

	advanced, err := cal.AdvanceOrDelete(ev.ID)
	if err != nil {
		t.Fatalf("AdvanceOrDelete error: %v", err)
	}
	if advanced {
		t.Fatal("one-shot event must report advanced=false")
	}
	if len(cal.Events) != 0 {
		t.Fatalf("one-shot event not removed: %v", cal.Events)
	}

	if _, err := cal.AdvanceOrDelete("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ID: err = %v, want ErrNotFound", err)
	}
}

func TestAdvanceOrDeleteRepeating(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		repeat    string
		wantStart time.Time
	}{
		{"daily", start.AddDate(0, 0, 1)},
		{"weekly", start.AddDate(0, 0, 7)},
		{"monthly", time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.repeat, func(t *testing.T) {
			t.Parallel()
			cal := New("g1", "+")
			d := draftAt("rep", start)
			d.Repeat = strPtr(tt.repeat)
			ev := mustAdd(t, cal, d)
			oldStart, oldEnd := ev.Start, ev.End

			advanced, err := cal.AdvanceOrDelete(ev.ID)
			if err != nil {
				t.Fatalf("AdvanceOrDelete error: %v", err)
			}
			if !advanced {
				t.Fatal("repeating event must report advanced=true")
			}
			got, ok := cal.EventByID(ev.ID)
			if !ok {
				t.Fatal("advanced event missing from calendar")
			}
			if !got.Start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", got.Start, tt.wantStart)
			}
			if !got.Start.After(oldStart) || !got.End.After(oldEnd) {
				t.Fatal("advance must move start and end strictly forward")
			}
			assertSorted(t, cal)
		})
	}
}

func TestAdvanceOrDeleteReinsertsSorted(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	d := draftAt("daily", base)
	d.Repeat = strPtr("daily")
	rep := mustAdd(t, cal, d)
	mustAdd(t, cal, draftAt("later-same-day", base.Add(4*time.Hour)))
	mustAdd(t, cal, draftAt("two-days-out", base.AddDate(0, 0, 2)))

	if _, err := cal.AdvanceOrDelete(rep.ID); err != nil {
		t.Fatalf("AdvanceOrDelete error: %v", err)
	}
	assertSorted(t, cal)
	if cal.Events[1].ID != rep.ID {
		t.Fatalf("advanced event at wrong position: %v", cal.Events)
	}
}

func TestMonthlyAdvanceClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start time.Time
		want  time.Time
	}{
		{
			name:  "jan 31 to feb 28",
			start: time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC),
			want:  time.Date(2026, 2, 28, 18, 30, 0, 0, time.UTC),
		},
		{
			name:  "jan 31 to feb 29 leap year",
			start: time.Date(2028, 1, 31, 18, 30, 0, 0, time.UTC),
			want:  time.Date(2028, 2, 29, 18, 30, 0, 0, time.UTC),
		},
		{
			name:  "dec 15 rolls into january",
			start: time.Date(2026, 12, 15, 9, 0, 0, 0, time.UTC),
			want:  time.Date(2027, 1, 15, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cal := New("g1", "+")
			d := draftAt("monthly", tt.start)
			d.Repeat = strPtr("monthly")
			ev := mustAdd(t, cal, d)

			if _, err := cal.AdvanceOrDelete(ev.ID); err != nil {
				t.Fatalf("AdvanceOrDelete error: %v", err)
			}
			got, _ := cal.EventByID(ev.ID)
			if !got.Start.Equal(tt.want) {
				t.Fatalf("start = %v, want %v", got.Start, tt.want)
			}
		})
	}
}

func TestParseRepeat(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]Repeat{
		"d": RepeatDaily, "daily": RepeatDaily,
		"w": RepeatWeekly, "weekly": RepeatWeekly,
		"m": RepeatMonthly, "monthly": RepeatMonthly,
		"off": RepeatNone, "none": RepeatNone, "": RepeatNone,
	} {
		got, err := ParseRepeat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseRepeat(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseRepeat("yearly"); err == nil {
		t.Fatal("expected error for unsupported repeat mode")
	}
}
