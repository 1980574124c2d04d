// Package telemetry defines the event stream the simulator emits and the
// sinks that carry it to a broker. The core publishes fire-and-forget; a
// sink must never block a simulation loop.
package telemetry

import "time"

type EquipmentType string

const (
	EquipmentOven    EquipmentType = "pizza_oven"
	EquipmentPrep    EquipmentType = "prep_station"
	EquipmentManager EquipmentType = "order_manager"
)

const (
	Measurement = "pizzeria_event"
	Location    = "main_kitchen"
)

// Envelope is the common head of every event. Variants embed it, so the
// marshalled JSON stays a flat record.
type Envelope struct {
	Measurement   string        `json:"measurement"`
	EquipmentID   string        `json:"equipment_id"`
	EquipmentType EquipmentType `json:"equipment_type"`
	Location      string        `json:"location"`
	EventType     string        `json:"event_type"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (e *Envelope) EventEnvelope() *Envelope { return e }

// Event is any typed variant carrying an Envelope.
type Event interface {
	EventEnvelope() *Envelope
}

// NewEnvelope stamps the shared fields. Timestamp is always UTC.
func NewEnvelope(equipmentID string, equipmentType EquipmentType, eventType string) Envelope {
	return Envelope{
		Measurement:   Measurement,
		EquipmentID:   equipmentID,
		EquipmentType: equipmentType,
		Location:      Location,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
	}
}

// === Order manager events ===

type OrderCreated struct {
	Envelope
	OrderID            string `json:"order_id"`
	PizzaType          string `json:"pizza_type"`
	Size               string `json:"size"`
	Status             string `json:"status"`
	EstimatedTotalTime int    `json:"estimated_total_time"`
	CurrentQueueLength int    `json:"current_queue_length"`
}

type OrderStatusUpdate struct {
	Envelope
	OrderID   string `json:"order_id"`
	PizzaType string `json:"pizza_type"`
	Size      string `json:"size"`
	Status    string `json:"status"`
	Duration  int    `json:"duration"`
}

type OrderDelivered struct {
	Envelope
	OrderID   string `json:"order_id"`
	PizzaType string `json:"pizza_type"`
	Size      string `json:"size"`
	Status    string `json:"status"`
	TotalTime int    `json:"total_time"`
	Duration  int    `json:"duration"`
}

type MetricsUpdate struct {
	Envelope
	ActiveOrders      int            `json:"active_orders"`
	CompletedOrders   int            `json:"completed_orders"`
	AvgCompletionTime float64        `json:"avg_completion_time"`
	OrdersByStatus    map[string]int `json:"orders_by_status"`
	TotalOrdersToday  int            `json:"total_orders_today"`
	CurrentHourRush   bool           `json:"current_hour_rush"`
}

// === Oven events ===

type PizzaStarted struct {
	Envelope
	OrderID       string  `json:"order_id"`
	PizzaType     string  `json:"pizza_type"`
	Size          string  `json:"size"`
	CookTime      int     `json:"cook_time"`
	Temperature   float64 `json:"temperature"`
	CapacityUsed  int     `json:"capacity_used"`
	CapacityTotal int     `json:"capacity_total"`
}

type PizzaFinished struct {
	Envelope
	OrderID        string  `json:"order_id"`
	PizzaType      string  `json:"pizza_type"`
	Size           string  `json:"size"`
	ActualCookTime int     `json:"actual_cook_time"`
	Temperature    float64 `json:"temperature"`
	CapacityUsed   int     `json:"capacity_used"`
	CapacityTotal  int     `json:"capacity_total"`
}

type TemperatureReading struct {
	Envelope
	Temperature     float64 `json:"temperature"`
	CapacityUsed    int     `json:"capacity_used"`
	CapacityTotal   int     `json:"capacity_total"`
	PizzasCooking   int     `json:"pizzas_cooking"`
	DoorOpen        bool    `json:"door_open"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

// === Prep station events ===

type PrepStarted struct {
	Envelope
	OrderID     string `json:"order_id"`
	PizzaType   string `json:"pizza_type"`
	Size        string `json:"size"`
	PrepTime    int    `json:"prep_time"`
	QueueLength int    `json:"queue_length"`
}

type PrepCompleted struct {
	Envelope
	OrderID        string `json:"order_id"`
	PizzaType      string `json:"pizza_type"`
	Size           string `json:"size"`
	ActualPrepTime int    `json:"actual_prep_time"`
	QueueLength    int    `json:"queue_length"`
}

type IngredientRestocked struct {
	Envelope
	Ingredient  string `json:"ingredient"`
	AmountAdded int    `json:"amount_added"`
	NewTotal    int    `json:"new_total"`
}

type StationStatus struct {
	Envelope
	QueueLength      int      `json:"queue_length"`
	LowIngredients   []string `json:"low_ingredients"`
	TotalIngredients int      `json:"total_ingredients"`
	EfficiencyScore  float64  `json:"efficiency_score"`
}
