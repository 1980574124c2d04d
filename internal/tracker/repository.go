package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRecord is one stored telemetry event: envelope columns for querying,
// the raw message for everything else.
type EventRecord struct {
	EquipmentID   string
	EquipmentType string
	Location      string
	EventType     string
	Timestamp     time.Time
	OrderID       string // empty for equipment-only events
	Payload       []byte
}

type OrderStatusView struct {
	OrderID   string    `json:"order_id"`
	PizzaType string    `json:"pizza_type"`
	Size      string    `json:"size"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TimelineEntry struct {
	EventType   string          `json:"event_type"`
	EquipmentID string          `json:"equipment_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

type OvenTemperature struct {
	OvenID      string    `json:"oven_id"`
	Temperature float64   `json:"temperature"`
	DoorOpen    bool      `json:"door_open"`
	Timestamp   time.Time `json:"timestamp"`
}

type EventStoreInterface interface {
	Migrate(ctx context.Context) error
	InsertEvent(ctx context.Context, rec EventRecord) error
	UpsertOrderStatus(ctx context.Context, v OrderStatusView) error
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatusView, bool, error)
	GetOrderTimeline(ctx context.Context, orderID string, limit, offset int) ([]TimelineEntry, error)
	LatestOvenTemperatures(ctx context.Context, window time.Duration) ([]OvenTemperature, error)
	LatestMetrics(ctx context.Context) (json.RawMessage, bool, error)
	RecentOrders(ctx context.Context, limit int) ([]OrderStatusView, error)
}

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore { return &EventStore{db: db} }

func (s *EventStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id             BIGSERIAL PRIMARY KEY,
			equipment_id   TEXT        NOT NULL,
			equipment_type TEXT        NOT NULL,
			location       TEXT        NOT NULL,
			event_type     TEXT        NOT NULL,
			ts             TIMESTAMPTZ NOT NULL,
			order_id       TEXT,
			payload        JSONB       NOT NULL,
			received_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS events_type_ts_idx ON events (event_type, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS events_order_idx ON events (order_id) WHERE order_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS order_status (
			order_id   TEXT PRIMARY KEY,
			pizza_type TEXT        NOT NULL,
			size       TEXT        NOT NULL,
			status     TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *EventStore) InsertEvent(ctx context.Context, rec EventRecord) error {
	orderID := sql.NullString{String: rec.OrderID, Valid: rec.OrderID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (equipment_id, equipment_type, location, event_type, ts, order_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.EquipmentID, rec.EquipmentType, rec.Location, rec.EventType, rec.Timestamp, orderID, rec.Payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpsertOrderStatus keeps the projection monotonic: a late or replayed event
// never overwrites a newer status.
func (s *EventStore) UpsertOrderStatus(ctx context.Context, v OrderStatusView) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_status (order_id, pizza_type, size, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		WHERE order_status.updated_at <= EXCLUDED.updated_at
	`, v.OrderID, v.PizzaType, v.Size, v.Status, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert order status: %w", err)
	}
	return nil
}

func (s *EventStore) GetOrderStatus(ctx context.Context, orderID string) (OrderStatusView, bool, error) {
	var v OrderStatusView
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, pizza_type, size, status, updated_at
		FROM order_status WHERE order_id = $1
	`, orderID).Scan(&v.OrderID, &v.PizzaType, &v.Size, &v.Status, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return OrderStatusView{}, false, nil
	}
	if err != nil {
		return OrderStatusView{}, false, fmt.Errorf("get order status: %w", err)
	}
	return v, true, nil
}

func (s *EventStore) GetOrderTimeline(ctx context.Context, orderID string, limit, offset int) ([]TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, equipment_id, ts, payload
		FROM events
		WHERE order_id = $1
		ORDER BY ts ASC
		LIMIT $2 OFFSET $3
	`, orderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.EventType, &e.EquipmentID, &e.Timestamp, &e.Payload); err != nil {
			return nil, fmt.Errorf("order timeline scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestOvenTemperatures returns the newest temperature_reading per oven
// seen within the window.
func (s *EventStore) LatestOvenTemperatures(ctx context.Context, window time.Duration) ([]OvenTemperature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (equipment_id)
			equipment_id,
			(payload->>'temperature')::float8,
			(payload->>'door_open')::bool,
			ts
		FROM events
		WHERE event_type = 'temperature_reading' AND ts > now() - $1::interval
		ORDER BY equipment_id, ts DESC
	`, fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("oven temperatures: %w", err)
	}
	defer rows.Close()

	var out []OvenTemperature
	for rows.Next() {
		var t OvenTemperature
		if err := rows.Scan(&t.OvenID, &t.Temperature, &t.DoorOpen, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("oven temperatures scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *EventStore) LatestMetrics(ctx context.Context) (json.RawMessage, bool, error) {
	var payload json.RawMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM events
		WHERE event_type = 'metrics_update'
		ORDER BY ts DESC LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest metrics: %w", err)
	}
	return payload, true, nil
}

func (s *EventStore) RecentOrders(ctx context.Context, limit int) ([]OrderStatusView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, pizza_type, size, status, updated_at
		FROM order_status
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	var out []OrderStatusView
	for rows.Next() {
		var v OrderStatusView
		if err := rows.Scan(&v.OrderID, &v.PizzaType, &v.Size, &v.Status, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("recent orders scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
