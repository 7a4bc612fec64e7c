package bot

import (
	"fmt"
	"strings"
	"time"

	"schedbot/internal/calendar"
)

const listTimeFormat = "Mon Jan 2 2006 15:04 MST"

func renderEvent(ev calendar.Event, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s to %s",
		ev.Name,
		ev.Start.In(loc).Format(listTimeFormat),
		ev.End.In(loc).Format(listTimeFormat))
	if ev.Description != "" {
		fmt.Fprintf(&b, "\n%s", ev.Description)
	}
	if ev.Repeat != calendar.RepeatNone {
		fmt.Fprintf(&b, "\nRepeats %s", ev.Repeat)
	}
	return b.String()
}

// renderEventList formats the calendar as a code block, splitting events
// that have already started from upcoming ones.
func renderEventList(cal *calendar.Calendar, now time.Time) string {
	loc, err := cal.Location()
	if err != nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString("```css\n")
	if len(cal.Events) == 0 {
		b.WriteString("No events found!\n")
	} else {
		i := 0
		headerWritten := false
		for i < len(cal.Events) && cal.Events[i].Start.Before(now) {
			if !headerWritten {
				b.WriteString("[Active Events]\n\n")
				headerWritten = true
			}
			writeListLine(&b, i, cal.Events[i], loc)
			i++
		}
		if i < len(cal.Events) {
			if headerWritten {
				b.WriteString("\n")
			}
			b.WriteString("[Upcoming Events]\n\n")
		}
		for i < len(cal.Events) {
			writeListLine(&b, i, cal.Events[i], loc)
			i++
		}
	}
	b.WriteString("```")
	return b.String()
}

func writeListLine(b *strings.Builder, index int, ev calendar.Event, loc *time.Location) {
	fmt.Fprintf(b, "%d : %s /* %s to %s */\n",
		index+1,
		ev.Name,
		ev.Start.In(loc).Format(listTimeFormat),
		ev.End.In(loc).Format(listTimeFormat))
	if ev.Description != "" {
		fmt.Fprintf(b, "    # %s\n", ev.Description)
	}
	if ev.Repeat != calendar.RepeatNone {
		fmt.Fprintf(b, "    # Repeat: %s\n", ev.Repeat)
	}
}
