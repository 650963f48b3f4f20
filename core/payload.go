package core

import "time"

// FortiSIEMIncident is the normalized form of one FortiSIEM incident XML
// document. It is stored under the "fortisiem" key of the event payload.
type FortiSIEMIncident struct {
	ID               string           `json:"id"`
	RuleType         string           `json:"rule_type"`
	Name             string           `json:"name"`
	SeverityNum      string           `json:"severity_num"`
	SeverityLabel    string           `json:"severity_label"`
	Description      string           `json:"description"`
	Remediation      string           `json:"remediation"`
	MitreTactic      string           `json:"mitre_tactic"`
	MitreTechniqueID string           `json:"mitre_technique_id"`
	DisplayTime      string           `json:"display_time"`
	Category         string           `json:"category"`
	DestinationIP    string           `json:"destination_ip"`
	AttackName       string           `json:"attack_name"`
	IPSSignatureID   string           `json:"ips_signature_id"`
	Affected         AffectedEntities `json:"affected"`

	// RawEvents holds the verbatim text of the <rawEvents> block. It is
	// extracted before XML decoding because the embedded content is not
	// guaranteed to be well-formed.
	RawEvents string `json:"raw_events"`
}

// AffectedEntities groups the entities referenced by an incident.
type AffectedEntities struct {
	SourceIP    string `json:"source_ip"`
	WebCategory string `json:"web_category"`
}

// RuleName returns the triggered rule's display name, falling back to the
// rule type when the incident carries no name element.
func (f *FortiSIEMIncident) RuleName() string {
	if f.Name != "" && f.Name != NotAvailable {
		return f.Name
	}
	return f.RuleType
}

// SyslogFields is the structured form of an RFC3164 syslog line. For
// unparseable input the fallback defaults keep every key populated so
// downstream consumers never have to probe for missing fields.
type SyslogFields struct {
	Priority  int       `json:"priority"`
	Facility  int       `json:"facility"`
	Severity  int       `json:"severity"`
	Month     string    `json:"month,omitempty"`
	Day       int       `json:"day,omitempty"`
	Time      string    `json:"time,omitempty"`
	Hostname  string    `json:"hostname"`
	Tag       string    `json:"tag"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MergeInto flattens the syslog fields into an event payload map. The
// raw_message and sender_ip keys are owned by the caller and left alone.
func (s *SyslogFields) MergeInto(payload map[string]interface{}) {
	payload["priority"] = s.Priority
	payload["facility"] = s.Facility
	payload["severity"] = s.Severity
	payload["hostname"] = s.Hostname
	payload["tag"] = s.Tag
	payload["message"] = s.Message
	payload["timestamp"] = s.Timestamp
	if s.Month != "" {
		payload["month"] = s.Month
		payload["day"] = s.Day
		payload["time"] = s.Time
	}
}
