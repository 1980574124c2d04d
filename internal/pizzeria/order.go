package pizzeria

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusReceived  Status = "received"
	StatusPrep      Status = "prep"
	StatusBaking    Status = "baking"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
)

var statusRank = map[Status]int{
	StatusReceived:  0,
	StatusPrep:      1,
	StatusBaking:    2,
	StatusReady:     3,
	StatusDelivered: 4,
}

func AllStatuses() []Status {
	return []Status{StatusReceived, StatusPrep, StatusBaking, StatusReady, StatusDelivered}
}

// CanAdvanceTo reports whether next is exactly one step forward. The
// lifecycle is strictly forward, one stage at a time.
func (s Status) CanAdvanceTo(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Order is owned by the OrderManager. Stations only ever see the id, type
// and size passed at admission; they never hold a reference to this struct.
type Order struct {
	ID        string
	PizzaType PizzaType
	Size      Size
	Status    Status
	CreatedAt time.Time

	// Stage-entry timestamps, each set at most once, in lifecycle order.
	PrepStart   time.Time
	BakingStart time.Time
	ReadyAt     time.Time
	DeliveredAt time.Time
}

// advance moves the order one stage forward and records the stage-entry
// timestamp. Any other transition is a programming error.
func (o *Order) advance(next Status, now time.Time) error {
	if !o.Status.CanAdvanceTo(next) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", o.ID, o.Status, next)
	}
	o.Status = next
	switch next {
	case StatusPrep:
		o.PrepStart = now
	case StatusBaking:
		o.BakingStart = now
	case StatusReady:
		o.ReadyAt = now
	case StatusDelivered:
		o.DeliveredAt = now
	}
	return nil
}

// TotalTime is defined only after delivery.
func (o *Order) TotalTime() (time.Duration, bool) {
	if o.DeliveredAt.IsZero() {
		return 0, false
	}
	return o.DeliveredAt.Sub(o.CreatedAt), true
}

// Elapsed is the age of the order at the given instant.
func (o *Order) Elapsed(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}
