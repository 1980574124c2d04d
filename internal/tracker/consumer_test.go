package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore records writes and can be primed with canned reads or failures.
type mockStore struct {
	mu       sync.Mutex
	events   []EventRecord
	statuses []OrderStatusView

	insertErr error
	upsertErr error

	orderStatus   OrderStatusView
	orderStatusOK bool
	storeErr      error
	timeline      []TimelineEntry
	temps         []OvenTemperature
	metrics       json.RawMessage
	metricsOK     bool
	recent        []OrderStatusView
}

func (m *mockStore) Migrate(context.Context) error { return nil }

func (m *mockStore) InsertEvent(_ context.Context, rec EventRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, rec)
	return nil
}

func (m *mockStore) UpsertOrderStatus(_ context.Context, v OrderStatusView) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, v)
	return nil
}

func (m *mockStore) GetOrderStatus(context.Context, string) (OrderStatusView, bool, error) {
	return m.orderStatus, m.orderStatusOK, m.storeErr
}

func (m *mockStore) GetOrderTimeline(context.Context, string, int, int) ([]TimelineEntry, error) {
	return m.timeline, m.storeErr
}

func (m *mockStore) LatestOvenTemperatures(context.Context, time.Duration) ([]OvenTemperature, error) {
	return m.temps, m.storeErr
}

func (m *mockStore) LatestMetrics(context.Context) (json.RawMessage, bool, error) {
	return m.metrics, m.metricsOK, m.storeErr
}

func (m *mockStore) RecentOrders(context.Context, int) ([]OrderStatusView, error) {
	return m.recent, m.storeErr
}

func newTestConsumer(store EventStoreInterface) *Consumer {
	return &Consumer{store: store, log: testLogger(), Prefetch: 16}
}

func delivery(body string) amqp.Delivery {
	return amqp.Delivery{Body: []byte(body), RoutingKey: "order_manager.order_created"}
}

func TestConsumer_ProcessOne_OrderEvent(t *testing.T) {
	// GIVEN a well-formed order lifecycle event
	store := &mockStore{}
	c := newTestConsumer(store)
	body := `{
		"measurement": "pizzeria_event",
		"equipment_id": "order_system",
		"equipment_type": "order_manager",
		"location": "main_kitchen",
		"event_type": "order_status_update",
		"timestamp": "2026-09-01T12:00:00Z",
		"order_id": "ORD-0001",
		"pizza_type": "pepperoni",
		"size": "large",
		"status": "baking",
		"duration": 312
	}`

	require.NoError(t, c.processOne(context.Background(), delivery(body)))

	// THEN the raw event is stored and the status projection refreshed
	require.Len(t, store.events, 1)
	rec := store.events[0]
	assert.Equal(t, "order_status_update", rec.EventType)
	assert.Equal(t, "ORD-0001", rec.OrderID)
	assert.JSONEq(t, body, string(rec.Payload))

	require.Len(t, store.statuses, 1)
	st := store.statuses[0]
	assert.Equal(t, "ORD-0001", st.OrderID)
	assert.Equal(t, "baking", st.Status)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), st.UpdatedAt)
}

func TestConsumer_ProcessOne_EquipmentEventSkipsProjection(t *testing.T) {
	store := &mockStore{}
	c := newTestConsumer(store)
	body := `{
		"equipment_id": "oven_2",
		"equipment_type": "pizza_oven",
		"event_type": "temperature_reading",
		"timestamp": "2026-09-01T12:00:00Z",
		"temperature": 447.5
	}`

	require.NoError(t, c.processOne(context.Background(), delivery(body)))

	assert.Len(t, store.events, 1)
	assert.Empty(t, store.statuses, "equipment events carry no order status")
}

func TestConsumer_ProcessOne_PoisonMessagesDeadLetter(t *testing.T) {
	store := &mockStore{}
	c := newTestConsumer(store)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing event_type", `{"equipment_id": "oven_1"}`},
		{"missing equipment_id", `{"event_type": "pizza_started"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.processOne(context.Background(), delivery(tc.body))
			assert.ErrorIs(t, err, ErrDLQ)
		})
	}
	assert.Empty(t, store.events, "poison messages must not reach the store")
}

func TestConsumer_ProcessOne_StoreFailuresRequeue(t *testing.T) {
	body := `{
		"equipment_id": "order_system",
		"event_type": "order_created",
		"timestamp": "2026-09-01T12:00:00Z",
		"order_id": "ORD-0002",
		"status": "received"
	}`

	// Insert failure requeues before any projection write.
	store := &mockStore{insertErr: errors.New("connection reset")}
	c := newTestConsumer(store)
	err := c.processOne(context.Background(), delivery(body))
	assert.ErrorIs(t, err, ErrRequeue)
	assert.Empty(t, store.statuses)

	// Projection failure requeues too; the broker will redeliver.
	store = &mockStore{upsertErr: errors.New("deadlock detected")}
	c = newTestConsumer(store)
	err = c.processOne(context.Background(), delivery(body))
	assert.ErrorIs(t, err, ErrRequeue)
	assert.Len(t, store.events, 1)
}

func TestConsumer_ProcessOne_DefaultsMissingTimestamp(t *testing.T) {
	store := &mockStore{}
	c := newTestConsumer(store)
	body := `{"equipment_id": "prep_1", "event_type": "prep_started"}`

	before := time.Now().UTC()
	require.NoError(t, c.processOne(context.Background(), delivery(body)))

	require.Len(t, store.events, 1)
	assert.False(t, store.events[0].Timestamp.Before(before))
}
