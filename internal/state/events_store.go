// ./internal/state/events_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openvault/yvm/internal/types"
)

// EventStore persists the observable event log to Postgres. It satisfies
// types.EventSink: persistence failures are logged and never fail the
// emitting ledger operation.
type EventStore struct{}

// NewEventStore returns a sink writing to the global database connection.
func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Publish(event types.Event) {
	if DB == nil {
		log.Error().Str("type", string(event.Type)).Msg("Cannot persist event: database not initialized")
		return
	}

	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event attributes")
		return
	}

	stmt := `INSERT INTO vault_events (event_type, event_timestamp, attributes) VALUES ($1, $2, $3);`
	if _, err := DB.Exec(stmt, string(event.Type), event.Timestamp, attrs); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to persist event")
	}
}

// ListEvents returns the most recent events, newest first, optionally
// filtered by type. Limit is capped at 1000.
func ListEvents(eventType string, limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if eventType != "" {
		query := `
			SELECT event_id, event_type, event_timestamp, attributes
			FROM vault_events
			WHERE event_type = $1
			ORDER BY event_timestamp DESC, event_id DESC
			LIMIT $2;`
		rows, err = DB.Query(query, eventType, limit)
	} else {
		query := `
			SELECT event_id, event_type, event_timestamp, attributes
			FROM vault_events
			ORDER BY event_timestamp DESC, event_id DESC
			LIMIT $1;`
		rows, err = DB.Query(query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]types.Event, 0, limit)
	for rows.Next() {
		var e types.Event
		var eventTypeStr string
		var attrs []byte
		if err := rows.Scan(&e.ID, &eventTypeStr, &e.Timestamp, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Type = types.EventType(eventTypeStr)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event attributes: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}
