package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"vigil/core"
)

// Informational-level defaults applied when a message does not match the
// RFC3164 shape, so downstream consumers always find these keys populated.
const (
	fallbackSeverity = 6 // informational
	fallbackFacility = 1 // user-level messages
	fallbackTag      = "unparsed"
)

// rfc3164Re matches the canonical <PRI>Mon DD HH:MM:SS HOSTNAME TAG: MSG shape.
var rfc3164Re = regexp.MustCompile(`^<(\d+)>(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d+)\s+(\d{2}:\d{2}:\d{2})\s+([\w.-]+)\s+([^:]+):\s+(.*)$`)

var monthsByName = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseRFC3164 parses a traditional BSD syslog line. On non-match an error
// is returned and the caller substitutes FallbackSyslogFields.
//
// RFC3164 timestamps carry no year, so the current year is assumed. Messages
// received across a year boundary will be mis-dated by one year; this is a
// known limitation of the format, kept for compatibility with the devices
// that emit it.
func ParseRFC3164(raw string) (*core.SyslogFields, error) {
	m := rfc3164Re.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("message does not match RFC3164 pattern")
	}

	pri, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid priority in syslog message: %w", err)
	}
	day, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid day in syslog message: %w", err)
	}

	fields := &core.SyslogFields{
		Priority: pri,
		Facility: pri / 8,
		Severity: pri % 8,
		Month:    m[2],
		Day:      day,
		Time:     m[4],
		Hostname: m[5],
		Tag:      m[6],
		Message:  m[7],
	}
	fields.Timestamp = syslogTimestamp(m[2], day, m[4])

	return fields, nil
}

// FallbackSyslogFields builds the guaranteed-success field set for input
// that matched no parser tier. The sender's network address stands in for
// the hostname and the whole payload becomes the message.
func FallbackSyslogFields(raw, sender string) *core.SyslogFields {
	return &core.SyslogFields{
		Priority:  fallbackFacility*8 + fallbackSeverity,
		Facility:  fallbackFacility,
		Severity:  fallbackSeverity,
		Hostname:  sender,
		Tag:       fallbackTag,
		Message:   raw,
		Timestamp: time.Now().UTC(),
	}
}

// syslogTimestamp combines the parsed month/day/time with the current year.
func syslogTimestamp(month string, day int, clock string) time.Time {
	hour, minute, second := 0, 0, 0
	fmt.Sscanf(clock, "%d:%d:%d", &hour, &minute, &second)
	return time.Date(time.Now().UTC().Year(), monthsByName[month], day, hour, minute, second, 0, time.UTC)
}
