package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Repeat is an event's recurrence mode. The zero value means one-shot.
type Repeat string

const (
	RepeatNone    Repeat = ""
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// ParseRepeat normalizes user input to a Repeat. Accepts the long forms and
// the single-letter shorthands (d/w/m). "off" and "none" map to RepeatNone.
func ParseRepeat(raw string) (Repeat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "off", "none":
		return RepeatNone, nil
	case "d", "daily":
		return RepeatDaily, nil
	case "w", "weekly":
		return RepeatWeekly, nil
	case "m", "monthly":
		return RepeatMonthly, nil
	default:
		return RepeatNone, fmt.Errorf("unknown repeat mode %q", raw)
	}
}

// Event is a single calendar entry. The ID is assigned at creation and is
// stable for the event's lifetime, across recurrence advances included.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Repeat      Repeat    `json:"repeat,omitempty"`
}

// Draft carries the nullable fields produced by event parsing. Nil fields
// mean "leave unchanged" on update and "not supplied" on create. A Repeat
// of "off" explicitly clears recurrence on update.
type Draft struct {
	Name        *string
	Start       *time.Time
	End         *time.Time
	Description *string
	Repeat      *string
}
