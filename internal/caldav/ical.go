package caldav

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// Event is one parsed VEVENT. Only the properties the sync pipeline needs
// are carried; everything else in the component is ignored.
type Event struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	RRule       string    `json:"rrule,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// ParseEvents reads iCalendar text and returns every well-formed VEVENT.
// Folded lines (continuations starting with a space or tab) are unfolded
// before property parsing. Property parameters after ';' are dropped. An
// event missing UID, DTSTART, or DTEND is dropped silently rather than
// failing the batch. VALARM and other nested components are skipped.
func ParseEvents(r io.Reader) ([]Event, error) {
	var events []Event
	var current *Event
	var hasUID, hasStart, hasEnd bool
	depth := 0 // nesting below VEVENT, e.g. VALARM

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending string
	flush := func() {
		if pending == "" {
			return
		}
		line := pending
		pending = ""

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			return
		}
		field := line[:colonIdx]
		value := line[colonIdx+1:]

		// Drop ;-delimited parameters (DTSTART;VALUE=DATE:20240115)
		if semiIdx := strings.Index(field, ";"); semiIdx != -1 {
			field = field[:semiIdx]
		}
		field = strings.ToUpper(strings.TrimSpace(field))

		switch field {
		case "BEGIN":
			if value == "VEVENT" && current == nil {
				current = &Event{}
				hasUID, hasStart, hasEnd = false, false, false
			} else if current != nil {
				depth++
			}
		case "END":
			if current == nil {
				return
			}
			if depth > 0 {
				depth--
				return
			}
			if value == "VEVENT" {
				if hasUID && hasStart && hasEnd {
					events = append(events, *current)
				}
				current = nil
			}
		default:
			if current == nil || depth > 0 {
				return
			}
			setField(current, field, value, &hasUID, &hasStart, &hasEnd)
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Unfold continuation lines into the pending logical line.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			pending += line[1:]
			continue
		}
		flush()
		pending = line
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func setField(ev *Event, field, value string, hasUID, hasStart, hasEnd *bool) {
	switch field {
	case "UID":
		ev.UID = unescape(value)
		*hasUID = ev.UID != ""
	case "SUMMARY":
		ev.Summary = unescape(value)
	case "DESCRIPTION":
		ev.Description = unescape(value)
	case "LOCATION":
		ev.Location = unescape(value)
	case "RRULE":
		ev.RRule = value
	case "STATUS":
		ev.Status = value
	case "DTSTART":
		t, allDay, ok := ParseDateTime(value)
		if ok {
			ev.StartsAt = t
			ev.AllDay = allDay
			*hasStart = true
		}
	case "DTEND":
		t, _, ok := ParseDateTime(value)
		if ok {
			ev.EndsAt = t
			*hasEnd = true
		}
	}
}

// ParseDateTime parses an iCal date or date-time value. An 8-character value
// is a bare DATE (all-day, local midnight); a Z-suffixed value is a UTC
// DATETIME; anything else is treated as a naive local DATETIME.
func ParseDateTime(value string) (t time.Time, allDay bool, ok bool) {
	switch {
	case len(value) == 8:
		t, err := time.ParseInLocation("20060102", value, time.Local)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, false, true
	default:
		t, err := time.ParseInLocation("20060102T150405", value, time.Local)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, false, true
	}
}

// unescape reverses the TEXT escaping from RFC 5545 §3.3.11.
func unescape(value string) string {
	value = strings.ReplaceAll(value, "\\n", "\n")
	value = strings.ReplaceAll(value, "\\N", "\n")
	value = strings.ReplaceAll(value, "\\,", ",")
	value = strings.ReplaceAll(value, "\\;", ";")
	value = strings.ReplaceAll(value, "\\\\", "\\")
	return value
}
