package pizzeria

import (
	"context"
	"time"
)

// Completion is a station's notification that an admitted order finished its
// timed task. The manager consumes these instead of guessing readiness with
// a per-tick probability.
type Completion struct {
	OrderID     string
	EquipmentID string
	Elapsed     time.Duration
}

// notify hands a completion to the manager. If the run is shutting down the
// send is abandoned so a station loop never wedges on a stopped consumer.
func notify(ctx context.Context, ch chan<- Completion, c Completion) {
	select {
	case ch <- c:
	case <-ctx.Done():
	}
}
