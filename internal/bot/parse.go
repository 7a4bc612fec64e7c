package bot

import (
	"errors"
	"strings"
	"time"

	"schedbot/internal/calendar"
)

// DraftParser turns raw command arguments into a structured event draft.
// Natural-language date extraction lives behind this interface; the
// built-in parser understands explicit datetimes only.
type DraftParser interface {
	Parse(args []string, loc *time.Location, now time.Time) (calendar.Draft, error)
}

var errNoDate = errors.New("no datetime found in input")

// flagDraftParser implements DraftParser with --flag options and explicit
// datetimes:
//
//	Game night at 2026-09-10 18:00 to 2026-09-10 20:00 --repeat weekly --desc Bring snacks
//
// The text before " at " is the event name; the part after is the start,
// optionally "to <end>". Missing end defaults to start + 1h (applied by the
// aggregate).
type flagDraftParser struct{}

func NewDraftParser() DraftParser { return flagDraftParser{} }

func (flagDraftParser) Parse(args []string, loc *time.Location, now time.Time) (calendar.Draft, error) {
	body, flags := splitFlags(args)

	var d calendar.Draft
	if desc, ok := flags["desc"]; ok {
		d.Description = &desc
	}
	if rep, ok := flags["repeat"]; ok {
		d.Repeat = &rep
	}

	text := strings.Join(body, " ")
	if text == "" {
		return d, nil
	}

	name := text
	if idx := strings.LastIndex(text, " at "); idx >= 0 {
		spec := text[idx+len(" at "):]
		start, end, err := parseTimeSpec(spec, loc, now)
		if err == nil {
			name = strings.TrimSpace(text[:idx])
			d.Start = &start
			if end != nil {
				d.End = end
			}
		}
	}
	if name != "" {
		d.Name = &name
	}
	return d, nil
}

// splitFlags separates "--key value value" options from the plain body.
// Values run until the next flag.
func splitFlags(args []string) (body []string, flags map[string]string) {
	flags = map[string]string{}
	var key string
	var val []string

	flush := func() {
		if key != "" {
			flags[key] = strings.Join(val, " ")
		}
		key, val = "", nil
	}

	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			flush()
			key = strings.TrimPrefix(arg, "--")
			continue
		}
		if key != "" {
			val = append(val, arg)
		} else {
			body = append(body, arg)
		}
	}
	flush()
	return body, flags
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04",
}

func parseTimeSpec(spec string, loc *time.Location, now time.Time) (time.Time, *time.Time, error) {
	parts := strings.SplitN(spec, " to ", 2)

	start, err := parseOne(strings.TrimSpace(parts[0]), loc, now)
	if err != nil {
		return time.Time{}, nil, err
	}
	if len(parts) == 1 {
		return start, nil, nil
	}
	end, err := parseOne(strings.TrimSpace(parts[1]), loc, now)
	if err != nil {
		return time.Time{}, nil, err
	}
	return start, &end, nil
}

func parseOne(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		// A bare clock time means "today in the calendar's timezone".
		if layout == "15:04" {
			local := now.In(loc)
			t = time.Date(local.Year(), local.Month(), local.Day(),
				t.Hour(), t.Minute(), 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, errNoDate
}
