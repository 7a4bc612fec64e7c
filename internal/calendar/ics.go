package calendar

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// ICS renders the calendar's events as an iCalendar document, one VEVENT
// per entry. Repeating events carry an RRULE so importers keep recurring
// past the currently materialized occurrence.
func (c *Calendar) ICS() string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//schedbot//calendar//EN")

	for _, ev := range c.Events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(time.Now().UTC())
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(ev.Name)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		switch ev.Repeat {
		case RepeatDaily:
			ve.AddRrule("FREQ=DAILY")
		case RepeatWeekly:
			ve.AddRrule("FREQ=WEEKLY")
		case RepeatMonthly:
			ve.AddRrule("FREQ=MONTHLY")
		}
	}
	return cal.Serialize()
}
