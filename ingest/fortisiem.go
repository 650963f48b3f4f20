package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vigil/core"
)

// ErrMissingIncidentAttributes marks an <incident> document that decoded but
// carries none of the required root attributes. The classifier persists such
// payloads under the explicit malformed tag instead of degrading further.
var ErrMissingIncidentAttributes = errors.New("incident root has no attributes")

// rawEventsRe captures the <rawEvents> block verbatim. The embedded event
// text is not guaranteed to be well-formed XML, so it must be cut out before
// structural decoding.
var rawEventsRe = regexp.MustCompile(`(?s)<rawEvents>(.*?)</rawEvents>`)

// incidentXML mirrors the FortiSIEM incident notification schema.
type incidentXML struct {
	XMLName          xml.Name       `xml:"incident"`
	IncidentID       string         `xml:"incidentId,attr"`
	RuleType         string         `xml:"ruleType,attr"`
	Severity         string         `xml:"severity,attr"`
	Name             string         `xml:"name"`
	Description      string         `xml:"description"`
	Remediation      string         `xml:"remediation"`
	MitreTactic      string         `xml:"mitreTactic"`
	MitreTechniqueID string         `xml:"mitreTechniqueId"`
	DisplayTime      string         `xml:"displayTime"`
	IncidentCategory string         `xml:"incidentCategory"`
	Sources          []incidentList `xml:"incidentSource"`
	Targets          []incidentList `xml:"incidentTarget"`
	Details          []incidentList `xml:"incidentDetails"`
}

type incidentList struct {
	Entries []incidentEntry `xml:"entry"`
}

type incidentEntry struct {
	Name      string `xml:"name,attr"`
	Attribute string `xml:"attribute,attr"`
	Value     string `xml:",chardata"`
}

// key returns whichever of name/attribute identifies this entry.
func (e incidentEntry) key() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Attribute
}

// ParseFortiSIEM decodes a FortiSIEM incident XML document into its
// normalized form. Extraction is all-or-nothing: any structural failure
// returns an error and the caller degrades the whole event to a fallback
// tier with the raw text preserved.
func ParseFortiSIEM(raw string) (*core.FortiSIEMIncident, error) {
	doc := raw

	// Textual pre-pass: capture the embedded raw events and remove the
	// block so it cannot break the outer parse.
	rawEvents := ""
	if m := rawEventsRe.FindStringSubmatchIndex(doc); m != nil {
		// The captured text is kept as-is except for surrounding
		// whitespace, which is notification-template indentation rather
		// than event content.
		rawEvents = strings.TrimSpace(doc[m[2]:m[3]])
		doc = doc[:m[0]] + doc[m[1]:]
	}

	var inc incidentXML
	if err := xml.Unmarshal([]byte(doc), &inc); err != nil {
		return nil, fmt.Errorf("failed to decode incident XML: %w", err)
	}

	if inc.IncidentID == "" && inc.RuleType == "" && inc.Severity == "" {
		return nil, ErrMissingIncidentAttributes
	}

	incident := &core.FortiSIEMIncident{
		ID:               inc.IncidentID,
		RuleType:         inc.RuleType,
		Name:             strings.TrimSpace(inc.Name),
		SeverityNum:      inc.Severity,
		SeverityLabel:    MapSeverity(inc.Severity),
		Description:      strings.TrimSpace(inc.Description),
		Remediation:      strings.TrimSpace(inc.Remediation),
		MitreTactic:      strings.TrimSpace(inc.MitreTactic),
		MitreTechniqueID: strings.TrimSpace(inc.MitreTechniqueID),
		DisplayTime:      strings.TrimSpace(inc.DisplayTime),
		Category:         strings.TrimSpace(inc.IncidentCategory),
		DestinationIP:    findDestinationIP(inc.Targets),
		AttackName:       findDetail(inc.Details, "attackName"),
		IPSSignatureID:   findDetail(inc.Details, "ipsSignatureId"),
		Affected: core.AffectedEntities{
			SourceIP:    findSourceIP(inc.Sources),
			WebCategory: findWebCategory(inc.Details),
		},
		RawEvents: rawEvents,
	}

	return incident, nil
}

// MapSeverity maps a FortiSIEM numeric severity (0-10) to a label.
// Non-numeric or missing values map to Unknown.
func MapSeverity(numStr string) string {
	n, err := strconv.Atoi(strings.TrimSpace(numStr))
	if err != nil {
		return "Unknown"
	}
	switch {
	case n >= 9:
		return "Critical"
	case n >= 7:
		return "High"
	case n >= 4:
		return "Medium"
	case n >= 1:
		return "Low"
	default:
		return "Unknown"
	}
}

// findSourceIP scans the first incidentSource block for an entry whose
// name contains "source ip". First match wins.
func findSourceIP(sources []incidentList) string {
	if len(sources) == 0 {
		return core.NotAvailable
	}
	for _, e := range sources[0].Entries {
		if strings.Contains(strings.ToLower(e.key()), "source ip") {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
			return core.NotAvailable
		}
	}
	return core.NotAvailable
}

// findWebCategory scans the first incidentDetails block for a category entry.
func findWebCategory(details []incidentList) string {
	if len(details) == 0 {
		return core.NotAvailable
	}
	for _, e := range details[0].Entries {
		if strings.Contains(strings.ToLower(e.key()), "category") {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
			return core.NotAvailable
		}
	}
	return core.NotAvailable
}

// findDetail returns the value of the incidentDetails entry with the exact
// attribute key, or the sentinel when absent.
func findDetail(details []incidentList, attribute string) string {
	if len(details) == 0 {
		return core.NotAvailable
	}
	for _, e := range details[0].Entries {
		if e.Attribute == attribute {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
			return core.NotAvailable
		}
	}
	return core.NotAvailable
}

// findDestinationIP returns the first entry value of the first
// incidentTarget block.
func findDestinationIP(targets []incidentList) string {
	if len(targets) == 0 || len(targets[0].Entries) == 0 {
		return core.NotAvailable
	}
	if v := strings.TrimSpace(targets[0].Entries[0].Value); v != "" {
		return v
	}
	return core.NotAvailable
}

// FormatDescription builds the human-readable incident body consumed by the
// ticket system. Absent fields are omitted rather than rendered as N/A lines;
// the field order is fixed.
func FormatDescription(incident *core.FortiSIEMIncident) string {
	present := func(v string) bool {
		return v != "" && v != core.NotAvailable
	}

	var parts []string
	if present(incident.ID) {
		parts = append(parts, fmt.Sprintf("**FortiSIEM Incident ID:** %s", incident.ID))
	}
	if present(incident.SeverityNum) {
		parts = append(parts, fmt.Sprintf("**FortiSIEM Severity:** %s (%s)", incident.SeverityLabel, incident.SeverityNum))
	}
	if present(incident.RuleName()) {
		parts = append(parts, fmt.Sprintf("**Triggered Rule:** %s (%s)", incident.RuleName(), incident.RuleType))
	}
	if present(incident.DisplayTime) {
		parts = append(parts, fmt.Sprintf("**Incident Time:** %s", incident.DisplayTime))
	}
	if present(incident.Affected.SourceIP) {
		parts = append(parts, fmt.Sprintf("**Source IP:** %s", incident.Affected.SourceIP))
	}
	if present(incident.DestinationIP) {
		parts = append(parts, fmt.Sprintf("**Destination IP:** %s", incident.DestinationIP))
	}
	if present(incident.AttackName) {
		parts = append(parts, fmt.Sprintf("**Attack Name:** %s", incident.AttackName))
	}
	if present(incident.IPSSignatureID) {
		parts = append(parts, fmt.Sprintf("**IPS Signature ID:** %s", incident.IPSSignatureID))
	}
	if present(incident.Description) {
		parts = append(parts, "\n-----------------------------------------")
		parts = append(parts, "**Event Description:**")
		parts = append(parts, incident.Description)
	}
	if present(incident.Remediation) {
		parts = append(parts, "\n**Suggested Remediation:**")
		parts = append(parts, incident.Remediation)
	}
	if present(incident.MitreTactic) || present(incident.MitreTechniqueID) {
		parts = append(parts, "\n**MITRE:**")
		if present(incident.MitreTactic) {
			parts = append(parts, fmt.Sprintf("Tactic: %s", incident.MitreTactic))
		}
		if present(incident.MitreTechniqueID) {
			parts = append(parts, fmt.Sprintf("Techniques: %s", incident.MitreTechniqueID))
		}
	}
	if present(incident.RawEvents) {
		parts = append(parts, "\n**Raw Events:**")
		parts = append(parts, incident.RawEvents)
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}
