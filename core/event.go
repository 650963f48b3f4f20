package core

import (
	"time"

	"github.com/google/uuid"
)

// Source tags identify which parser produced a RawEvent's structured payload.
// The tag is set exactly once when the event is built and never changes.
const (
	SourceWebhook      = "webhook"
	SourceSyslog       = "syslog"
	SourceSyslogJSON   = "syslog-json"
	SourceSyslogCEF    = "syslog-cef"
	SourceSyslogLEEF   = "syslog-leef"
	SourceFortiSIEM    = "syslog-fortisiem-xml"
	SourceXMLMalformed = "syslog-xml-malformed"
)

// NotAvailable is the sentinel for extracted fields that are absent from the
// source document. Downstream consumers expect a string, never a null.
const NotAvailable = "N/A"

// RawEvent is the unit of persistence: one ingested security message with its
// original payload and any normalized fields. Events are append-only; a
// persisted RawEvent is never mutated.
type RawEvent struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	ReceivedAt time.Time              `json:"received_at"`
	Payload    map[string]interface{} `json:"payload"`

	// Signature is the verified HMAC digest, present only for webhook events.
	Signature string `json:"sig_sha256,omitempty"`

	// Fast-lookup columns populated when the FortiSIEM parser succeeds, so
	// triage queries never re-parse the XML.
	IncidentID string `json:"fortisiem_incident_id,omitempty"`
	Severity   string `json:"fortisiem_severity,omitempty"`
	RuleName   string `json:"fortisiem_rule_name,omitempty"`
	SourceIP   string `json:"fortisiem_src_ip,omitempty"`
}

// NewRawEvent creates a RawEvent with a generated UUID and the receipt
// timestamp captured now, before any parsing happens.
func NewRawEvent(source string) *RawEvent {
	return &RawEvent{
		ID:         uuid.New().String(),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Payload:    make(map[string]interface{}),
	}
}
