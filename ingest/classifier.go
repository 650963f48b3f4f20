package ingest

import (
	"encoding/json"
	"errors"
	"strings"

	"vigil/core"
	"vigil/metrics"
)

// Classification is the tagged result of format detection: the Source tag
// plus the variant produced by whichever parser matched. Exactly one of the
// variant fields is set for structured formats; the unparsed tiers carry
// only the syslog fallback fields.
type Classification struct {
	Source     string
	RawMessage string
	Sender     string

	// JSON holds the decoded object for syslog-json payloads.
	JSON map[string]interface{}
	// Incident holds the normalized FortiSIEM incident.
	Incident *core.FortiSIEMIncident
	// Syslog holds RFC3164 fields, parsed or fallback, for the syslog tier.
	Syslog *core.SyslogFields
}

// Classify maps a raw payload to a format tag and parsed candidate. The
// cascade is ordered and first-match-wins; every tier is wrapped so a parse
// failure degrades to the next tier instead of aborting ingestion. The
// terminal tier always succeeds, so Classify never fails.
func Classify(raw, sender string) *Classification {
	c := &Classification{RawMessage: raw, Sender: sender}
	trimmed := strings.TrimSpace(raw)

	switch {
	case strings.Contains(raw, "CEF:"):
		// Detected only; field-level CEF parsing is not done here.
		c.Source = core.SourceSyslogCEF
		return c

	case strings.Contains(raw, "LEEF:"):
		c.Source = core.SourceSyslogLEEF
		return c

	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			c.Source = core.SourceSyslogJSON
			c.JSON = decoded
			return c
		}
		metrics.ParseFallbacks.WithLabelValues("json").Inc()
		// Not valid JSON after all, fall through to the syslog tiers.

	case strings.HasPrefix(trimmed, "<incident"):
		incident, err := ParseFortiSIEM(raw)
		if err == nil {
			c.Source = core.SourceFortiSIEM
			c.Incident = incident
			return c
		}
		if errors.Is(err, ErrMissingIncidentAttributes) {
			// Structurally valid XML with no usable incident root: persist
			// under the explicit malformed tag, raw text only.
			metrics.ParseFallbacks.WithLabelValues("fortisiem").Inc()
			c.Source = core.SourceXMLMalformed
			return c
		}
		metrics.ParseFallbacks.WithLabelValues("fortisiem").Inc()
		// XML decode failure, fall through to the syslog tiers.
	}

	fields, err := ParseRFC3164(raw)
	if err != nil {
		metrics.ParseFallbacks.WithLabelValues("rfc3164").Inc()
		fields = FallbackSyslogFields(raw, sender)
	}
	c.Source = core.SourceSyslog
	c.Syslog = fields
	return c
}

// Payload builds the persisted payload mapping for this classification.
// raw_message and sender_ip are always present, whatever the format.
func (c *Classification) Payload() map[string]interface{} {
	payload := map[string]interface{}{}

	switch {
	case c.JSON != nil:
		for k, v := range c.JSON {
			payload[k] = v
		}
	case c.Incident != nil:
		payload["fortisiem"] = c.Incident
		payload["description_formatted"] = FormatDescription(c.Incident)
	case c.Syslog != nil:
		c.Syslog.MergeInto(payload)
	case c.Source == core.SourceSyslogCEF:
		payload["format"] = "CEF"
	case c.Source == core.SourceSyslogLEEF:
		payload["format"] = "LEEF"
	}

	// Set last so decoded JSON keys can never clobber the invariants.
	payload["raw_message"] = c.RawMessage
	payload["sender_ip"] = c.Sender

	return payload
}
