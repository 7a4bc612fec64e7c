package calendar

import "time"

// UpdateTimezone changes the calendar's timezone and shifts every event so
// its wall-clock reading carries over from the old zone (an offset shift of
// oldOffset-newOffset applied to the instant).
//
// The change is rejected without mutation when the earliest event's shifted
// start would land in the past: ok is false and the calendar is unchanged.
// An unknown zone returns ErrInvalidZone.
//
// On success the shifted events are returned. The caller must reschedule
// each of them; the aggregate never calls back into the scheduler.
func (c *Calendar) UpdateTimezone(name string, now time.Time) (shifted []Event, ok bool, err error) {
	newLoc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false, ErrInvalidZone
	}

	if len(c.Events) == 0 {
		c.Timezone = name
		return nil, true, nil
	}

	oldLoc, err := c.Location()
	if err != nil {
		return nil, false, err
	}

	// Events are sorted, so index 0 holds the earliest start.
	if shiftZone(c.Events[0].Start, oldLoc, newLoc).Before(now) {
		return nil, false, nil
	}

	for i := range c.Events {
		c.Events[i].Start = shiftZone(c.Events[i].Start, oldLoc, newLoc)
		c.Events[i].End = shiftZone(c.Events[i].End, oldLoc, newLoc)
	}
	c.Timezone = name

	out := make([]Event, len(c.Events))
	copy(out, c.Events)
	return out, true, nil
}

// shiftZone moves the instant by the difference between the two zones'
// offsets at t, so "18:00 in the old zone" becomes "18:00 in the new zone".
func shiftZone(t time.Time, oldLoc, newLoc *time.Location) time.Time {
	_, oldOffset := t.In(oldLoc).Zone()
	_, newOffset := t.In(newLoc).Zone()
	return t.Add(time.Duration(oldOffset-newOffset) * time.Second)
}
