package ingest

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRFC3164_StandardFormat tests the canonical BSD syslog shape
func TestParseRFC3164_StandardFormat(t *testing.T) {
	raw := `<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8`

	fields, err := ParseRFC3164(raw)

	require.NoError(t, err, "Should parse RFC3164 syslog message")
	assert.Equal(t, 34, fields.Priority)
	assert.Equal(t, 4, fields.Facility, "Facility should be priority / 8")
	assert.Equal(t, 2, fields.Severity, "Severity should be priority % 8")
	assert.Equal(t, "Oct", fields.Month)
	assert.Equal(t, 11, fields.Day)
	assert.Equal(t, "22:14:15", fields.Time)
	assert.Equal(t, "mymachine", fields.Hostname)
	assert.Equal(t, "su", fields.Tag)
	assert.Contains(t, fields.Message, "su root")
}

// TestParseRFC3164_PriorityDecoding tests facility/severity extraction across priorities
func TestParseRFC3164_PriorityDecoding(t *testing.T) {
	testCases := []struct {
		priority int
		facility int
		severity int
	}{
		{0, 0, 0},
		{7, 0, 7},
		{34, 4, 2},
		{165, 20, 5},
		{191, 23, 7},
	}

	for _, tc := range testCases {
		t.Run(strconv.Itoa(tc.priority), func(t *testing.T) {
			raw := `<` + strconv.Itoa(tc.priority) + `>Jan  2 03:04:05 host app: message`
			fields, err := ParseRFC3164(raw)

			require.NoError(t, err)
			assert.Equal(t, tc.facility, fields.Facility)
			assert.Equal(t, tc.severity, fields.Severity)
		})
	}
}

// TestParseRFC3164_CurrentYearTimestamp tests the year-inference heuristic.
// RFC3164 carries no year; the current year is assumed, which mis-dates
// messages crossing a year boundary. That limitation is deliberate.
func TestParseRFC3164_CurrentYearTimestamp(t *testing.T) {
	raw := `<13>Mar 15 08:30:00 gateway cron: job started`

	fields, err := ParseRFC3164(raw)

	require.NoError(t, err)
	expected := time.Date(time.Now().UTC().Year(), time.March, 15, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, expected, fields.Timestamp)
}

// TestParseRFC3164_NonMatching tests rejection of non-syslog input
func TestParseRFC3164_NonMatching(t *testing.T) {
	for _, raw := range []string{
		"hello world",
		"",
		"<34>not a timestamp at all",
		`{"json": true}`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseRFC3164(raw)
			assert.Error(t, err)
		})
	}
}

// TestFallbackSyslogFields tests the guaranteed defaults for unparsed input
func TestFallbackSyslogFields(t *testing.T) {
	fields := FallbackSyslogFields("hello world", "192.0.2.7")

	assert.Equal(t, "192.0.2.7", fields.Hostname, "Hostname defaults to sender address")
	assert.Equal(t, "unparsed", fields.Tag)
	assert.Equal(t, 6, fields.Severity, "Severity defaults to informational")
	assert.Equal(t, 1, fields.Facility, "Facility defaults to user-level")
	assert.Equal(t, "hello world", fields.Message)
	assert.False(t, fields.Timestamp.IsZero())
}
