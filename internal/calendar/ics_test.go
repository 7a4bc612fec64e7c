package calendar

import (
	"strings"
	"testing"
	"time"
)

func TestICSExport(t *testing.T) {
	t.Parallel()
	cal := New("g1", "+")
	start := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

	d := draftAt("raid night", start)
	d.Description = strPtr("bring potions")
	d.Repeat = strPtr("weekly")
	ev := mustAdd(t, cal, d)
	mustAdd(t, cal, draftAt("one-shot", start.Add(time.Hour)))

	out := cal.ICS()
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"END:VCALENDAR",
		"SUMMARY:raid night",
		"DESCRIPTION:bring potions",
		"RRULE:FREQ=WEEKLY",
		"UID:" + ev.ID,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("ICS output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("VEVENT count = %d, want 2", n)
	}
	// The one-shot event must not carry a recurrence rule.
	if n := strings.Count(out, "RRULE"); n != 1 {
		t.Fatalf("RRULE count = %d, want 1", n)
	}
}
