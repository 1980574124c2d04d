package pizzeria

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pizzeria-system/internal/telemetry"
)

const (
	cookJitterLo = -30 * time.Second
	cookJitterHi = 60 * time.Second

	ovenMonitorInterval = 2 * time.Second
	thermalInterval     = 5 * time.Second

	targetTemperature = 450.0
	minTemperature    = 200.0
	maxTemperature    = 500.0

	// Regulation kicks in outside this band around the target.
	tempDeadband  = 5.0
	tempGain      = 0.1
	doorOpenOdds  = 0.1
	doorDropMin   = 20
	doorDropMax   = 50
	doorFloorTemp = 300.0

	readingEventChance = 0.3
)

// Pizza is the oven-local projection of an admitted order.
type Pizza struct {
	OrderID   string
	PizzaType PizzaType
	Size      Size
	StartTime time.Time
	CookTime  time.Duration
}

func (p Pizza) IsReady(now time.Time) bool {
	return now.Sub(p.StartTime) >= p.CookTime
}

func (p Pizza) TimeRemaining(now time.Time) time.Duration {
	rem := p.CookTime - now.Sub(p.StartTime)
	if rem < 0 {
		return 0
	}
	return rem
}

// Oven holds a fixed-capacity set of cooking pizzas. Temperature evolves on
// its own cadence and is telemetry only; it never gates admission.
type Oven struct {
	id          string
	capacity    int
	sink        telemetry.Sink
	completions chan<- Completion
	log         *logrus.Entry

	mu          sync.Mutex
	pizzas      []Pizza
	currentTemp float64
	targetTemp  float64
	doorOpen    bool
	rng         *rand.Rand
}

func NewOven(id string, capacity int, sink telemetry.Sink, completions chan<- Completion, rng *rand.Rand) (*Oven, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("oven %s: capacity must be positive, got %d", id, capacity)
	}
	return &Oven{
		id:          id,
		capacity:    capacity,
		sink:        sink,
		completions: completions,
		log:         logrus.WithField("oven", id),
		currentTemp: targetTemperature,
		targetTemp:  targetTemperature,
		rng:         rng,
	}, nil
}

func (o *Oven) ID() string    { return o.id }
func (o *Oven) Capacity() int { return o.capacity }

// Admit takes the pizza if there is spare capacity. Returns (false, nil)
// when full; unknown size is an error.
func (o *Oven) Admit(orderID string, pt PizzaType, size Size) (bool, error) {
	base, err := CookTime(size)
	if err != nil {
		return false, err
	}
	if _, err := Recipe(pt); err != nil {
		return false, err
	}

	o.mu.Lock()
	if len(o.pizzas) >= o.capacity {
		o.mu.Unlock()
		return false, nil
	}
	cookTime := base + uniformJitter(o.rng, cookJitterLo, cookJitterHi)
	pizza := Pizza{
		OrderID:   orderID,
		PizzaType: pt,
		Size:      size,
		StartTime: time.Now(),
		CookTime:  cookTime,
	}
	o.pizzas = append(o.pizzas, pizza)
	used := len(o.pizzas)
	temp := o.currentTemp
	o.mu.Unlock()

	o.sink.Publish(&telemetry.PizzaStarted{
		Envelope:      telemetry.NewEnvelope(o.id, telemetry.EquipmentOven, "pizza_started"),
		OrderID:       orderID,
		PizzaType:     string(pt),
		Size:          string(size),
		CookTime:      int(cookTime.Seconds()),
		Temperature:   temp,
		CapacityUsed:  used,
		CapacityTotal: o.capacity,
	})
	o.log.WithFields(logrus.Fields{"order_id": orderID, "cook_time": cookTime}).Debug("pizza started")
	return true, nil
}

// Run drives the monitor and thermal loops until ctx is cancelled.
func (o *Oven) Run(ctx context.Context) error {
	monitor := time.NewTicker(ovenMonitorInterval)
	defer monitor.Stop()
	thermal := time.NewTicker(thermalInterval)
	defer thermal.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-monitor.C:
			o.completeFinished(ctx)
		case <-thermal.C:
			o.updateTemperature()
		}
	}
}

func (o *Oven) completeFinished(ctx context.Context) {
	now := time.Now()

	o.mu.Lock()
	var done []Pizza
	remaining := o.pizzas[:0]
	for _, p := range o.pizzas {
		if p.IsReady(now) {
			done = append(done, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	o.pizzas = remaining
	used := len(o.pizzas)
	temp := o.currentTemp
	emitReading := o.rng.Float64() < readingEventChance
	reading := telemetry.TemperatureReading{}
	if emitReading {
		reading = o.readingLocked()
	}
	o.mu.Unlock()

	for _, p := range done {
		elapsed := now.Sub(p.StartTime)
		o.sink.Publish(&telemetry.PizzaFinished{
			Envelope:       telemetry.NewEnvelope(o.id, telemetry.EquipmentOven, "pizza_finished"),
			OrderID:        p.OrderID,
			PizzaType:      string(p.PizzaType),
			Size:           string(p.Size),
			ActualCookTime: int(elapsed.Seconds()),
			Temperature:    temp,
			CapacityUsed:   used,
			CapacityTotal:  o.capacity,
		})
		notify(ctx, o.completions, Completion{OrderID: p.OrderID, EquipmentID: o.id, Elapsed: elapsed})
		o.log.WithField("order_id", p.OrderID).Debug("pizza finished")
	}

	if emitReading {
		o.sink.Publish(&reading)
	}
}

func (o *Oven) readingLocked() telemetry.TemperatureReading {
	return telemetry.TemperatureReading{
		Envelope:        telemetry.NewEnvelope(o.id, telemetry.EquipmentOven, "temperature_reading"),
		Temperature:     o.currentTemp,
		CapacityUsed:    len(o.pizzas),
		CapacityTotal:   o.capacity,
		PizzasCooking:   len(o.pizzas),
		DoorOpen:        o.doorOpen,
		EfficiencyScore: o.efficiencyLocked(),
	}
}

// updateTemperature evolves the thermal state: occasional door openings drop
// the temperature while pizzas are loaded, then proportional correction with
// noise pulls it back toward the target. Always clamped to physical bounds.
func (o *Oven) updateTemperature() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.doorOpen {
		o.doorOpen = false
	}

	if len(o.pizzas) > 0 && o.rng.Float64() < doorOpenOdds {
		o.doorOpen = true
		drop := float64(doorDropMin + o.rng.Intn(doorDropMax-doorDropMin+1))
		o.currentTemp -= drop
		if o.currentTemp < doorFloorTemp {
			o.currentTemp = doorFloorTemp
		}
	}

	diff := o.targetTemp - o.currentTemp
	if diff > tempDeadband || diff < -tempDeadband {
		o.currentTemp += diff*tempGain + uniformFloat(o.rng, -2, 2)
	} else {
		o.currentTemp += uniformFloat(o.rng, -3, 3)
	}

	if o.currentTemp < minTemperature {
		o.currentTemp = minTemperature
	}
	if o.currentTemp > maxTemperature {
		o.currentTemp = maxTemperature
	}
}

// Efficiency weighs capacity utilization (0.7) against temperature proximity
// to target (0.3), clamped to [0,1]. Telemetry only.
func (o *Oven) Efficiency() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.efficiencyLocked()
}

func (o *Oven) efficiencyLocked() float64 {
	utilization := float64(len(o.pizzas)) / float64(o.capacity)
	tempDiff := o.targetTemp - o.currentTemp
	if tempDiff < 0 {
		tempDiff = -tempDiff
	}
	tempEff := 1.0 - tempDiff/100.0
	eff := utilization*0.7 + tempEff*0.3
	if eff < 0 {
		eff = 0
	}
	if eff > 1 {
		eff = 1
	}
	return eff
}

// PizzaView is a point-in-time view of one cooking pizza.
type PizzaView struct {
	OrderID       string        `json:"order_id"`
	PizzaType     string        `json:"pizza_type"`
	Size          string        `json:"size"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// OvenStatus is a point-in-time snapshot of the oven.
type OvenStatus struct {
	OvenID        string      `json:"oven_id"`
	Temperature   float64     `json:"temperature"`
	CapacityUsed  int         `json:"capacity_used"`
	CapacityTotal int         `json:"capacity_total"`
	DoorOpen      bool        `json:"door_open"`
	Pizzas        []PizzaView `json:"pizzas"`
	Efficiency    float64     `json:"efficiency"`
}

// Status reads a consistent snapshot without mutating anything.
func (o *Oven) Status() OvenStatus {
	now := time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	pizzas := make([]PizzaView, 0, len(o.pizzas))
	for _, p := range o.pizzas {
		pizzas = append(pizzas, PizzaView{
			OrderID:       p.OrderID,
			PizzaType:     string(p.PizzaType),
			Size:          string(p.Size),
			TimeRemaining: p.TimeRemaining(now),
		})
	}
	return OvenStatus{
		OvenID:        o.id,
		Temperature:   o.currentTemp,
		CapacityUsed:  len(o.pizzas),
		CapacityTotal: o.capacity,
		DoorOpen:      o.doorOpen,
		Pizzas:        pizzas,
		Efficiency:    o.efficiencyLocked(),
	}
}

// load reports the number of pizzas currently cooking. Test hook.
func (o *Oven) load() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pizzas)
}

// temperature reports the current thermal reading. Test hook.
func (o *Oven) temperature() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentTemp
}
