package pizzeria

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pizzeria-system/internal/telemetry"
)

const (
	prepJitterLo = -20 * time.Second
	prepJitterHi = 40 * time.Second

	prepMonitorInterval = 3 * time.Second
	restockInterval     = 30 * time.Second
	restockThreshold    = 50
	restockMin          = 20
	restockMax          = 40
	lowIngredientMark   = 20

	// Queue shorter than this counts as fully efficient.
	prepQueueComfort = 3

	statusEventChance = 0.2
)

// PrepTask is the station-local projection of an admitted order.
type PrepTask struct {
	OrderID   string
	PizzaType PizzaType
	Size      Size
	StartTime time.Time
	PrepTime  time.Duration
}

func (t PrepTask) IsReady(now time.Time) bool {
	return now.Sub(t.StartTime) >= t.PrepTime
}

func (t PrepTask) TimeRemaining(now time.Time) time.Duration {
	rem := t.PrepTime - now.Sub(t.StartTime)
	if rem < 0 {
		return 0
	}
	return rem
}

// PrepStation holds a queue of in-progress prep tasks, bounded only by
// ingredient stock. All state behind mu; admission is one critical section
// so two concurrent admits can never overdraw the same stock.
type PrepStation struct {
	id          string
	sink        telemetry.Sink
	completions chan<- Completion
	log         *logrus.Entry

	mu          sync.Mutex
	tasks       []PrepTask
	ingredients map[string]int
	rng         *rand.Rand
}

func NewPrepStation(id string, sink telemetry.Sink, completions chan<- Completion, rng *rand.Rand) *PrepStation {
	stock := make(map[string]int, len(initialStock))
	for ing, n := range initialStock {
		stock[ing] = n
	}
	return &PrepStation{
		id:          id,
		sink:        sink,
		completions: completions,
		log:         logrus.WithField("station", id),
		ingredients: stock,
		rng:         rng,
	}
}

func (p *PrepStation) ID() string { return p.id }

// Admit accepts the order if current stock covers the recipe, decrementing
// the stock and starting the timed task in the same critical section.
// Returns (false, nil) on insufficient stock with no side effects; the
// caller retries later or elsewhere. Unknown type/size is an error.
func (p *PrepStation) Admit(orderID string, pt PizzaType, size Size) (bool, error) {
	recipe, err := Recipe(pt)
	if err != nil {
		return false, err
	}
	base, err := PrepTime(size)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	for ing, need := range recipe {
		if p.ingredients[ing] < need {
			p.mu.Unlock()
			return false, nil
		}
	}
	for ing, need := range recipe {
		p.ingredients[ing] -= need
	}
	prepTime := base + uniformJitter(p.rng, prepJitterLo, prepJitterHi)
	task := PrepTask{
		OrderID:   orderID,
		PizzaType: pt,
		Size:      size,
		StartTime: time.Now(),
		PrepTime:  prepTime,
	}
	p.tasks = append(p.tasks, task)
	queueLen := len(p.tasks)
	p.mu.Unlock()

	ev := &telemetry.PrepStarted{
		Envelope:    telemetry.NewEnvelope(p.id, telemetry.EquipmentPrep, "prep_started"),
		OrderID:     orderID,
		PizzaType:   string(pt),
		Size:        string(size),
		PrepTime:    int(prepTime.Seconds()),
		QueueLength: queueLen,
	}
	p.sink.Publish(ev)
	p.log.WithFields(logrus.Fields{"order_id": orderID, "prep_time": prepTime}).Debug("prep started")
	return true, nil
}

// Run drives the monitor and restock loops until ctx is cancelled.
func (p *PrepStation) Run(ctx context.Context) error {
	monitor := time.NewTicker(prepMonitorInterval)
	defer monitor.Stop()
	restock := time.NewTicker(restockInterval)
	defer restock.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-monitor.C:
			p.completeFinished(ctx)
		case <-restock.C:
			p.restock()
		}
	}
}

// completeFinished removes tasks whose elapsed time reached their duration
// and reports each one.
func (p *PrepStation) completeFinished(ctx context.Context) {
	now := time.Now()

	p.mu.Lock()
	var done []PrepTask
	remaining := p.tasks[:0]
	for _, t := range p.tasks {
		if t.IsReady(now) {
			done = append(done, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	p.tasks = remaining
	queueLen := len(p.tasks)
	emitStatus := p.rng.Float64() < statusEventChance
	status := telemetry.StationStatus{}
	if emitStatus {
		status = p.statusEventLocked()
	}
	p.mu.Unlock()

	for _, t := range done {
		elapsed := now.Sub(t.StartTime)
		p.sink.Publish(&telemetry.PrepCompleted{
			Envelope:       telemetry.NewEnvelope(p.id, telemetry.EquipmentPrep, "prep_completed"),
			OrderID:        t.OrderID,
			PizzaType:      string(t.PizzaType),
			Size:           string(t.Size),
			ActualPrepTime: int(elapsed.Seconds()),
			QueueLength:    queueLen,
		})
		notify(ctx, p.completions, Completion{OrderID: t.OrderID, EquipmentID: p.id, Elapsed: elapsed})
		p.log.WithField("order_id", t.OrderID).Debug("prep completed")
	}

	if emitStatus {
		p.sink.Publish(&status)
	}
}

// statusEventLocked builds the periodic status_update event. Caller holds mu.
func (p *PrepStation) statusEventLocked() telemetry.StationStatus {
	var low []string
	total := 0
	for ing, n := range p.ingredients {
		total += n
		if n < lowIngredientMark {
			low = append(low, ing)
		}
	}
	sort.Strings(low)
	return telemetry.StationStatus{
		Envelope:         telemetry.NewEnvelope(p.id, telemetry.EquipmentPrep, "status_update"),
		QueueLength:      len(p.tasks),
		LowIngredients:   low,
		TotalIngredients: total,
		EfficiencyScore:  p.efficiencyLocked(),
	}
}

// restock tops up any ingredient below the threshold by a random amount.
func (p *PrepStation) restock() {
	type topUp struct {
		ingredient string
		added      int
		newTotal   int
	}
	var ups []topUp

	p.mu.Lock()
	for ing, n := range p.ingredients {
		if n < restockThreshold {
			add := restockMin + p.rng.Intn(restockMax-restockMin+1)
			p.ingredients[ing] += add
			ups = append(ups, topUp{ingredient: ing, added: add, newTotal: p.ingredients[ing]})
		}
	}
	p.mu.Unlock()

	for _, u := range ups {
		p.sink.Publish(&telemetry.IngredientRestocked{
			Envelope:    telemetry.NewEnvelope(p.id, telemetry.EquipmentPrep, "ingredient_restocked"),
			Ingredient:  u.ingredient,
			AmountAdded: u.added,
			NewTotal:    u.newTotal,
		})
	}
}

// Efficiency averages a queue-length term with an ingredient-scarcity term.
// Telemetry only; it never gates admission.
func (p *PrepStation) Efficiency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.efficiencyLocked()
}

func (p *PrepStation) efficiencyLocked() float64 {
	queueEff := 1.0
	if len(p.tasks) >= prepQueueComfort {
		queueEff = 0.5
	}
	minStock := 0
	first := true
	for _, n := range p.ingredients {
		if first || n < minStock {
			minStock = n
			first = false
		}
	}
	ingredientEff := float64(minStock) / 100.0
	eff := (queueEff + ingredientEff) / 2.0
	if eff > 1.0 {
		eff = 1.0
	}
	return eff
}

// PrepTaskView is a point-in-time view of one queued task.
type PrepTaskView struct {
	OrderID       string        `json:"order_id"`
	PizzaType     string        `json:"pizza_type"`
	Size          string        `json:"size"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// PrepStatus is a point-in-time snapshot of the station.
type PrepStatus struct {
	StationID   string         `json:"station_id"`
	QueueLength int            `json:"queue_length"`
	Ingredients map[string]int `json:"ingredients"`
	Tasks       []PrepTaskView `json:"current_orders"`
	Efficiency  float64        `json:"efficiency"`
}

// Status reads a consistent snapshot without mutating anything. Safe to call
// concurrently with admission and the internal loops.
func (p *PrepStation) Status() PrepStatus {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	stock := make(map[string]int, len(p.ingredients))
	for ing, n := range p.ingredients {
		stock[ing] = n
	}
	tasks := make([]PrepTaskView, 0, len(p.tasks))
	for _, t := range p.tasks {
		tasks = append(tasks, PrepTaskView{
			OrderID:       t.OrderID,
			PizzaType:     string(t.PizzaType),
			Size:          string(t.Size),
			TimeRemaining: t.TimeRemaining(now),
		})
	}
	return PrepStatus{
		StationID:   p.id,
		QueueLength: len(p.tasks),
		Ingredients: stock,
		Tasks:       tasks,
		Efficiency:  p.efficiencyLocked(),
	}
}

// stockLevel reports current stock of one ingredient. Test hook.
func (p *PrepStation) stockLevel(ingredient string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingredients[ingredient]
}

// setStock overrides one ingredient level. Test hook.
func (p *PrepStation) setStock(ingredient string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingredients[ingredient] = n
}
