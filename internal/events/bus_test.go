package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Event) error { return errors.New("smtp down") }

type failingStore struct{}

func (failingStore) InsertEvent(context.Context, Event) (Event, error) {
	return Event{}, errors.New("db down")
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := &Memory{now: func() time.Time { return at }}
	var buf bytes.Buffer
	bus := &Bus{Store: store, Notifiers: []Notifier{LogNotifier{Logger: zerolog.New(&buf)}, nil}}
	cartID := uuid.New()

	ev, err := bus.Emit(context.Background(), " "+TopicCartCheckedOut+" ", cartID, map[string]any{"total": "9.90"})
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.ID)
	require.Equal(t, TopicCartCheckedOut, ev.Topic)
	require.Equal(t, at, ev.OccurredAt)
	require.JSONEq(t, `{"total":"9.90"}`, string(ev.Payload))
	require.Len(t, store.Events, 1)

	var logged map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	require.Equal(t, cartID.String(), logged["aggregate_id"])
	require.Equal(t, map[string]any{"total": "9.90"}, logged["payload"])
}

func TestEmitValidates(t *testing.T) {
	bus := &Bus{Store: &Memory{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "", uuid.New(), nil)
	require.ErrorContains(t, err, "topic is required")
	_, err = bus.Emit(ctx, TopicCartCheckedOut, uuid.Nil, nil)
	require.ErrorContains(t, err, "aggregate id is required")
	_, err = bus.Emit(ctx, TopicCartCheckedOut, uuid.New(), json.RawMessage(`{"broken"`))
	require.ErrorContains(t, err, "not valid json")

	ev, err := bus.Emit(ctx, TopicCartCheckedOut, uuid.New(), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))

	var nilBus *Bus
	_, err = nilBus.Emit(ctx, TopicCartCheckedOut, uuid.New(), nil)
	require.Error(t, err)
	_, err = (&Bus{Store: failingStore{}}).Emit(ctx, TopicCartCheckedOut, uuid.New(), nil)
	require.ErrorContains(t, err, "db down")
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	bus := &Bus{Store: &Memory{}, Notifiers: []Notifier{failingNotifier{}, failingNotifier{}}}
	ev, err := bus.Emit(context.Background(), TopicCartRuleExhausted, uuid.New(), nil)
	require.ErrorContains(t, err, "smtp down")
	require.NotZero(t, ev.ID, "event is persisted anyway")
}
