package store

import (
	"context"
	"fmt"

	"github.com/noah-isme/toko-pricing/internal/events"
)

// Events persists domain events.
type Events struct {
	DB DBTX
}

var _ events.Store = Events{}

// InsertEvent implements events.Store.
func (e Events) InsertEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	err := e.DB.QueryRow(ctx, `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, occurred_at`, ev.Topic, ev.AggregateID, []byte(ev.Payload)).Scan(&ev.ID, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("store: insert event: %w", err)
	}
	return ev, nil
}
