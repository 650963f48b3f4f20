package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vigil/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventStorage handles RawEvent persistence. The events table is
// append-only: records are inserted exactly once and never updated or
// deleted by this service. The seq rowid makes store append order
// observable for same-connection ordering guarantees.
type EventStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewEventStorage creates the event storage handler and ensures the schema.
func NewEventStorage(db *SQLite, logger *zap.SugaredLogger) (*EventStorage, error) {
	storage := &EventStorage{db: db, logger: logger}
	if err := storage.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure events table: %w", err)
	}
	return storage, nil
}

// ensureTable creates the events table and its triage indexes.
func (es *EventStorage) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		sig_sha256 TEXT,
		fortisiem_incident_id TEXT,
		fortisiem_severity TEXT,
		fortisiem_rule_name TEXT,
		fortisiem_src_ip TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
	CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
	CREATE INDEX IF NOT EXISTS idx_events_incident_id ON events(fortisiem_incident_id);
	CREATE INDEX IF NOT EXISTS idx_events_src_ip ON events(fortisiem_src_ip);
	`

	if _, err := es.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	es.logger.Info("Events table ensured in SQLite")
	return nil
}

// AppendEvent durably appends one RawEvent and returns the assigned
// identifier. The identifier is minted here if the caller left it empty.
func (es *EventStorage) AppendEvent(ctx context.Context, event *core.RawEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event payload: %w", err)
	}

	query := `
		INSERT INTO events
		(id, source, received_at, payload, sig_sha256,
		 fortisiem_incident_id, fortisiem_severity, fortisiem_rule_name, fortisiem_src_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = es.db.WriteDB.ExecContext(ctx, query,
		event.ID,
		event.Source,
		event.ReceivedAt,
		string(payloadJSON),
		nullable(event.Signature),
		nullable(event.IncidentID),
		nullable(event.Severity),
		nullable(event.RuleName),
		nullable(event.SourceIP),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append event: %w", err)
	}

	return event.ID, nil
}

// GetEvents returns persisted events newest-first.
func (es *EventStorage) GetEvents(ctx context.Context, limit, offset int) ([]core.RawEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, source, received_at, payload, sig_sha256,
		       fortisiem_incident_id, fortisiem_severity, fortisiem_rule_name, fortisiem_src_ip
		FROM events
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`

	rows, err := es.db.ReadDB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]core.RawEvent, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// GetEvent returns a single event by ID.
func (es *EventStorage) GetEvent(ctx context.Context, id string) (*core.RawEvent, error) {
	query := `
		SELECT id, source, received_at, payload, sig_sha256,
		       fortisiem_incident_id, fortisiem_severity, fortisiem_rule_name, fortisiem_src_ip
		FROM events
		WHERE id = ?
	`

	row := es.db.ReadDB.QueryRowContext(ctx, query, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// CountEvents returns the total number of persisted events.
func (es *EventStorage) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := es.db.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*core.RawEvent, error) {
	var event core.RawEvent
	var payloadJSON string
	var signature, incidentID, severity, ruleName, sourceIP sql.NullString

	err := s.Scan(
		&event.ID,
		&event.Source,
		&event.ReceivedAt,
		&payloadJSON,
		&signature,
		&incidentID,
		&severity,
		&ruleName,
		&sourceIP,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode stored payload for event %s: %w", event.ID, err)
	}
	event.Signature = signature.String
	event.IncidentID = incidentID.String
	event.Severity = severity.String
	event.RuleName = ruleName.String
	event.SourceIP = sourceIP.String

	return &event, nil
}

// nullable converts an empty string to a SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
