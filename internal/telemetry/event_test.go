package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_StampsSharedFields(t *testing.T) {
	before := time.Now().UTC()
	env := NewEnvelope("oven_1", EquipmentOven, "pizza_started")
	after := time.Now().UTC()

	assert.Equal(t, Measurement, env.Measurement)
	assert.Equal(t, "oven_1", env.EquipmentID)
	assert.Equal(t, EquipmentOven, env.EquipmentType)
	assert.Equal(t, Location, env.Location)
	assert.Equal(t, "pizza_started", env.EventType)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.False(t, env.Timestamp.Before(before))
	assert.False(t, env.Timestamp.After(after))
}

func TestRoutingKey(t *testing.T) {
	e := &PrepStarted{Envelope: NewEnvelope("prep_1", EquipmentPrep, "prep_started")}
	assert.Equal(t, "prep_station.prep_started", RoutingKey(e))

	m := &MetricsUpdate{Envelope: NewEnvelope("order_system", EquipmentManager, "metrics_update")}
	assert.Equal(t, "order_manager.metrics_update", RoutingKey(m))
}

func TestEvent_MarshalsAsFlatRecord(t *testing.T) {
	// GIVEN a typed variant embedding the envelope
	e := &PizzaFinished{
		Envelope:       NewEnvelope("oven_2", EquipmentOven, "pizza_finished"),
		OrderID:        "ORD-0042",
		PizzaType:      "pepperoni",
		Size:           "large",
		ActualCookTime: 735,
		Temperature:    447.5,
		CapacityUsed:   2,
		CapacityTotal:  3,
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	// THEN the JSON is one flat object, envelope and payload side by side
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "pizzeria_event", flat["measurement"])
	assert.Equal(t, "oven_2", flat["equipment_id"])
	assert.Equal(t, "pizza_oven", flat["equipment_type"])
	assert.Equal(t, "main_kitchen", flat["location"])
	assert.Equal(t, "pizza_finished", flat["event_type"])
	assert.Equal(t, "ORD-0042", flat["order_id"])
	assert.Equal(t, float64(735), flat["actual_cook_time"])
	assert.NotContains(t, flat, "Envelope")
}
