package ingest

import (
	"context"
	"time"

	"vigil/core"
	"vigil/metrics"

	"go.uber.org/zap"
)

// EventWriter appends a fully-built RawEvent durably and returns the
// assigned identifier. Each append is a single atomic write; there is no
// queue in front of it.
type EventWriter interface {
	AppendEvent(ctx context.Context, event *core.RawEvent) (string, error)
}

// Ingestor is the shared classify-then-persist pipeline all listeners feed.
// It never fails on malformed input: every payload lands in the store under
// some tag, terminating at the unparsed syslog tier.
type Ingestor struct {
	writer EventWriter
	logger *zap.SugaredLogger
}

// NewIngestor creates the shared ingestion pipeline.
func NewIngestor(writer EventWriter, logger *zap.SugaredLogger) *Ingestor {
	return &Ingestor{writer: writer, logger: logger}
}

// Ingest classifies one syslog-channel payload and appends it. Store
// failures are logged with the full payload so the event is not silently
// lost; the error is returned for callers that have a reply channel, but
// the UDP/TCP listeners absorb it.
func (i *Ingestor) Ingest(ctx context.Context, raw, sender, channel string) (string, error) {
	start := time.Now()

	classification := Classify(raw, sender)

	event := core.NewRawEvent(classification.Source)
	event.Payload = classification.Payload()
	if incident := classification.Incident; incident != nil {
		event.IncidentID = incident.ID
		event.Severity = incident.SeverityNum
		event.RuleName = incident.RuleName()
		event.SourceIP = incident.Affected.SourceIP
	}

	id, err := i.writer.AppendEvent(ctx, event)
	if err != nil {
		metrics.StoreFailures.WithLabelValues(channel).Inc()
		i.logger.Errorw("Failed to persist event, payload preserved in log",
			"error", err,
			"source", event.Source,
			"sender", sender,
			"channel", channel,
			"payload", event.Payload)
		return "", err
	}

	metrics.EventsIngested.WithLabelValues(event.Source).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	i.logger.Debugf("Event persisted: id=%s source=%s sender=%s", id, event.Source, sender)
	return id, nil
}

// IngestWebhook appends one verified webhook payload. The body has already
// passed signature verification; the stored signature is the verified
// header value, never recomputed. The decoded JSON object is merged with
// the raw body so raw_message stays present verbatim.
func (i *Ingestor) IngestWebhook(ctx context.Context, body []byte, decoded map[string]interface{}, sender, signature string) (string, error) {
	start := time.Now()

	event := core.NewRawEvent(core.SourceWebhook)
	event.Signature = signature
	for k, v := range decoded {
		event.Payload[k] = v
	}
	event.Payload["raw_message"] = string(body)
	event.Payload["sender_ip"] = sender

	id, err := i.writer.AppendEvent(ctx, event)
	if err != nil {
		metrics.StoreFailures.WithLabelValues("webhook").Inc()
		i.logger.Errorw("Failed to persist webhook event, payload preserved in log",
			"error", err,
			"sender", sender,
			"payload", event.Payload)
		return "", err
	}

	metrics.EventsIngested.WithLabelValues(core.SourceWebhook).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	i.logger.Infof("Webhook event persisted: id=%s sender=%s", id, sender)
	return id, nil
}
