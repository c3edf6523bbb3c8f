package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/dailymenu/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

// Every event of a user lands on the same partition so consumers see a user's
// changes in commit order.
var eventCatalog = map[string]EventMetadata{
	events.TypeFavoriteCreated: favoriteEvents,
	events.TypeFavoriteUpdated: favoriteEvents,
	events.TypeFavoriteDeleted: favoriteEvents,
	events.TypeHistoryRecorded: historyEvents,
	events.TypeHistoryUpdated:  historyEvents,
	events.TypeHistoryDeleted:  historyEvents,
	events.TypePrefsUpdated:    prefsEvents,
	events.TypePrefsDeleted:    prefsEvents,
}

var (
	favoriteEvents = EventMetadata{
		AggregateType: "favorite",
		Topic:         "menu_favorite_events",
		SchemaSubject: "menu_favorite_events-value",
	}
	historyEvents = EventMetadata{
		AggregateType: "history_entry",
		Topic:         "menu_history_events",
		SchemaSubject: "menu_history_events-value",
	}
	prefsEvents = EventMetadata{
		AggregateType: "user_prefs",
		Topic:         "menu_prefs_events",
		SchemaSubject: "menu_prefs_events-value",
	}
)

type outboxEvent struct {
	eventType   string
	userID      string
	aggregateID string
	payload     any
}

func insertOutbox(ctx context.Context, tx pgx.Tx, evt outboxEvent) error {
	meta, ok := eventCatalog[evt.eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.eventType)
	}
	body, err := json.Marshal(evt.payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		evt.userID,
		meta.AggregateType,
		evt.aggregateID,
		evt.eventType,
		meta.Topic,
		meta.SchemaSubject,
		evt.userID,
		body,
	)
	return err
}
