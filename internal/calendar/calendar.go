package calendar

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an event index or ID does not resolve.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidZone is returned for unrecognized IANA timezone names.
	ErrInvalidZone = errors.New("timezone not found")
	// ErrInvalidDraft is returned when a draft is missing required fields
	// or violates the start <= end invariant.
	ErrInvalidDraft = errors.New("invalid event draft")
)

// Calendar is the per-guild aggregate: the ordered event list plus guild
// settings and the permission table.
//
// Invariant: Events is always sorted ascending by Start. Every mutating
// method maintains this; nothing else may reorder the slice.
//
// The aggregate is a plain in-memory document. Callers persist it through
// the storage layer after mutating, holding the guild lock for the whole
// read-modify-write sequence.
type Calendar struct {
	GuildID        string      `json:"guild_id"`
	Timezone       string      `json:"timezone,omitempty"`
	Prefix         string      `json:"prefix,omitempty"`
	DefaultChannel string      `json:"default_channel,omitempty"`
	Events         []Event     `json:"events,omitempty"`
	Permissions    []PermEntry `json:"permissions,omitempty"`
}

// New creates an empty calendar for a guild.
func New(guildID, prefix string) *Calendar {
	return &Calendar{GuildID: guildID, Prefix: prefix}
}

// Location resolves the calendar's timezone, defaulting to UTC when unset.
func (c *Calendar) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ErrInvalidZone
	}
	return loc, nil
}

// AddEvent builds an event from the draft and inserts it in sorted position.
// The draft must carry at least a name and a start; a missing end defaults
// to one hour after start.
func (c *Calendar) AddEvent(d Draft) (Event, error) {
	if d.Name == nil || *d.Name == "" || d.Start == nil {
		return Event{}, ErrInvalidDraft
	}
	ev := Event{
		ID:    uuid.NewString(),
		Name:  *d.Name,
		Start: *d.Start,
	}
	if d.End != nil {
		ev.End = *d.End
	} else {
		ev.End = ev.Start.Add(time.Hour)
	}
	if ev.End.Before(ev.Start) {
		return Event{}, ErrInvalidDraft
	}
	if d.Description != nil {
		ev.Description = *d.Description
	}
	if d.Repeat != nil {
		rep, err := ParseRepeat(*d.Repeat)
		if err != nil {
			return Event{}, err
		}
		ev.Repeat = rep
	}

	c.insertSorted(ev)
	return ev, nil
}

// DeleteEvent removes the event at the given position.
func (c *Calendar) DeleteEvent(index int) (Event, error) {
	if index < 0 || index >= len(c.Events) {
		return Event{}, ErrNotFound
	}
	ev := c.Events[index]
	c.Events = append(c.Events[:index], c.Events[index+1:]...)
	return ev, nil
}

// UpdateEvent applies the non-nil fields of the draft onto the event at
// index and re-inserts it at its sorted position (the start may have moved).
// A repeat value of "off" clears recurrence; other nil fields keep their
// prior values.
func (c *Calendar) UpdateEvent(index int, d Draft) (Event, error) {
	if index < 0 || index >= len(c.Events) {
		return Event{}, ErrNotFound
	}
	ev := c.Events[index]

	if d.Name != nil && *d.Name != "" {
		ev.Name = *d.Name
	}
	if d.Start != nil {
		ev.Start = *d.Start
	}
	if d.End != nil {
		ev.End = *d.End
	}
	if d.Description != nil {
		ev.Description = *d.Description
	}
	if d.Repeat != nil {
		rep, err := ParseRepeat(*d.Repeat)
		if err != nil {
			return Event{}, err
		}
		ev.Repeat = rep
	}
	if ev.End.Before(ev.Start) {
		return Event{}, ErrInvalidDraft
	}

	c.Events = append(c.Events[:index], c.Events[index+1:]...)
	c.insertSorted(ev)
	return ev, nil
}

// AdvanceOrDelete is the finalize-path operation: a one-shot event is
// removed, a repeating event advances one unit and is re-inserted at its
// new sorted position. It reports whether the event still exists so the
// scheduler knows whether to re-arm timers.
//
// Month arithmetic is clamped to a valid date: Jan 31 advancing monthly
// lands on Feb 28 (29 in leap years), never on an overflowed March date.
func (c *Calendar) AdvanceOrDelete(eventID string) (bool, error) {
	index := c.indexByID(eventID)
	if index < 0 {
		return false, ErrNotFound
	}
	ev := c.Events[index]
	c.Events = append(c.Events[:index], c.Events[index+1:]...)

	if ev.Repeat == RepeatNone {
		return false, nil
	}

	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	switch ev.Repeat {
	case RepeatDaily:
		ev.Start = ev.Start.In(loc).AddDate(0, 0, 1)
		ev.End = ev.End.In(loc).AddDate(0, 0, 1)
	case RepeatWeekly:
		ev.Start = ev.Start.In(loc).AddDate(0, 0, 7)
		ev.End = ev.End.In(loc).AddDate(0, 0, 7)
	case RepeatMonthly:
		ev.Start = addMonthClamped(ev.Start, loc)
		ev.End = addMonthClamped(ev.End, loc)
	}

	c.insertSorted(ev)
	return true, nil
}

// EventByID returns a copy of the event with the given ID.
func (c *Calendar) EventByID(eventID string) (Event, bool) {
	if i := c.indexByID(eventID); i >= 0 {
		return c.Events[i], true
	}
	return Event{}, false
}

// UpdatePrefix sets the guild's command prefix.
func (c *Calendar) UpdatePrefix(prefix string) { c.Prefix = prefix }

// UpdateDefaultChannel sets the channel that notifications are sent to.
func (c *Calendar) UpdateDefaultChannel(channelID string) { c.DefaultChannel = channelID }

func (c *Calendar) indexByID(eventID string) int {
	for i := range c.Events {
		if c.Events[i].ID == eventID {
			return i
		}
	}
	return -1
}

// insertSorted places ev before the first existing event whose start is at
// or after ev's start, so a new event precedes existing events with an
// equal start.
func (c *Calendar) insertSorted(ev Event) int {
	i := sort.Search(len(c.Events), func(i int) bool {
		return !c.Events[i].Start.Before(ev.Start)
	})
	c.Events = append(c.Events, Event{})
	copy(c.Events[i+1:], c.Events[i:])
	c.Events[i] = ev
	return i
}

// addMonthClamped advances t by one calendar month in loc, clamping the day
// of month to the target month's length. time.AddDate would normalize
// Jan 31 + 1 month into March, which is not what a monthly event means.
func addMonthClamped(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	year, month, day := lt.Date()
	hour, min, sec := lt.Clock()

	if last := daysInMonth(year, month+1); day > last {
		day = last
	}
	return time.Date(year, month+1, day, hour, min, sec, lt.Nanosecond(), loc)
}

// daysInMonth returns the number of days in the given month; month may be
// out of the 1..12 range and is normalized the way time.Date does.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
