package pizzeria

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pizzeria-system/internal/telemetry"
)

const orderSystemID = "order_system"

// Station is the admission surface the manager sees. Both prep stations and
// ovens satisfy it: a false result is backpressure, not an error.
type Station interface {
	ID() string
	Admit(orderID string, pt PizzaType, size Size) (bool, error)
}

// RushWindow is an hour range [StartHour, EndHour) with an elevated arrival
// rate.
type RushWindow struct {
	StartHour int `yaml:"start"`
	EndHour   int `yaml:"end"`
}

func (w RushWindow) contains(hour int) bool {
	return w.StartHour <= hour && hour < w.EndHour
}

// ManagerConfig is supplied at construction and immutable thereafter.
type ManagerConfig struct {
	BaseOrdersPerMinute float64
	RushMultiplier      float64
	RushWindows         []RushWindow
	OrderProbability    float64
	ProcessingInterval  time.Duration
	MetricsInterval     time.Duration
	PrepBatchSize       int
	DwellMin            time.Duration
	DwellMax            time.Duration
	PizzaTypes          []PizzaType
	Sizes               []Size
}

// DefaultManagerConfig mirrors the reference deployment.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseOrdersPerMinute: 0.5,
		RushMultiplier:      3,
		RushWindows:         []RushWindow{{StartHour: 11, EndHour: 14}, {StartHour: 17, EndHour: 21}},
		OrderProbability:    0.8,
		ProcessingInterval:  5 * time.Second,
		MetricsInterval:     10 * time.Second,
		PrepBatchSize:       2,
		DwellMin:            120 * time.Second,
		DwellMax:            600 * time.Second,
		PizzaTypes:          AllPizzaTypes(),
		Sizes:               AllSizes(),
	}
}

func (c ManagerConfig) Validate() error {
	if c.BaseOrdersPerMinute <= 0 {
		return fmt.Errorf("base_orders_per_minute must be positive, got %v", c.BaseOrdersPerMinute)
	}
	if c.RushMultiplier < 1 {
		return fmt.Errorf("rush_hour_multiplier must be >= 1, got %v", c.RushMultiplier)
	}
	if c.OrderProbability <= 0 || c.OrderProbability > 1 {
		return fmt.Errorf("order_probability must be in (0,1], got %v", c.OrderProbability)
	}
	if c.ProcessingInterval <= 0 || c.MetricsInterval <= 0 {
		return fmt.Errorf("processing and metrics intervals must be positive")
	}
	if c.PrepBatchSize <= 0 {
		return fmt.Errorf("prep batch size must be positive, got %d", c.PrepBatchSize)
	}
	if c.DwellMin <= 0 || c.DwellMax < c.DwellMin {
		return fmt.Errorf("dwell range invalid: [%v, %v]", c.DwellMin, c.DwellMax)
	}
	for _, w := range c.RushWindows {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return fmt.Errorf("rush window invalid: %d-%d", w.StartHour, w.EndHour)
		}
	}
	if len(c.PizzaTypes) == 0 || len(c.Sizes) == 0 {
		return fmt.Errorf("menu must list at least one pizza type and one size")
	}
	for _, t := range c.PizzaTypes {
		if _, err := ParsePizzaType(string(t)); err != nil {
			return err
		}
	}
	for _, s := range c.Sizes {
		if _, err := ParseSize(string(s)); err != nil {
			return err
		}
	}
	return nil
}

// OrderManager owns the order registry and the lifecycle state machine. All
// transitions are applied by the Run goroutine; arrival only appends, the
// metrics and snapshot paths only read.
type OrderManager struct {
	cfg   ManagerConfig
	sink  telemetry.Sink
	preps []Station
	ovens []Station
	log   *logrus.Entry

	prepDoneC <-chan Completion
	bakeDoneC <-chan Completion

	mu       sync.RWMutex
	orders   map[string]*Order
	counter  int
	prepDone map[string]bool          // prep task finished, eligible for an oven
	dwell    map[string]time.Duration // pickup delay chosen when the order goes READY
	rng      *rand.Rand
}

func NewOrderManager(cfg ManagerConfig, sink telemetry.Sink, preps, ovens []Station,
	prepDone, bakeDone <-chan Completion, rng *rand.Rand) (*OrderManager, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("order manager config: %w", err)
	}
	if len(preps) == 0 || len(ovens) == 0 {
		return nil, fmt.Errorf("order manager needs at least one prep station and one oven")
	}
	return &OrderManager{
		cfg:       cfg,
		sink:      sink,
		preps:     preps,
		ovens:     ovens,
		log:       logrus.WithField("component", "order_manager"),
		prepDoneC: prepDone,
		bakeDoneC: bakeDone,
		orders:    make(map[string]*Order),
		prepDone:  make(map[string]bool),
		dwell:     make(map[string]time.Duration),
		rng:       rng,
	}, nil
}

// Run drives the arrival, processing and metrics cadences until ctx is
// cancelled. Completion notifications are consumed between ticks, so no
// transition ever spans a tick boundary.
func (m *OrderManager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.arrivalLoop(ctx)
	}()

	processing := time.NewTicker(m.cfg.ProcessingInterval)
	defer processing.Stop()
	metrics := time.NewTicker(m.cfg.MetricsInterval)
	defer metrics.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case c := <-m.prepDoneC:
			m.handlePrepDone(c)
		case c := <-m.bakeDoneC:
			m.handleBakeDone(c)
		case <-processing.C:
			m.processOrders()
		case <-metrics.C:
			m.publishMetrics()
		}
	}
}

// === Arrival process ===

func (m *OrderManager) arrivalLoop(ctx context.Context) {
	for {
		wait := m.nextArrivalDelay(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		place := m.rng.Float64() < m.cfg.OrderProbability
		m.mu.Unlock()
		if place {
			m.createOrder()
		}
	}
}

// nextArrivalDelay derives the inter-arrival wait from the base rate, the
// rush multiplier for the current hour, and uniform jitter, floored at 5s.
func (m *OrderManager) nextArrivalDelay(now time.Time) time.Duration {
	rate := m.cfg.BaseOrdersPerMinute
	if m.isRushHour(now.Hour()) {
		rate *= m.cfg.RushMultiplier
	}
	base := time.Duration(60 / rate * float64(time.Second))

	m.mu.Lock()
	jitter := uniformJitter(m.rng, -10*time.Second, 20*time.Second)
	m.mu.Unlock()

	wait := base + jitter
	if wait < 5*time.Second {
		wait = 5 * time.Second
	}
	return wait
}

func (m *OrderManager) isRushHour(hour int) bool {
	for _, w := range m.cfg.RushWindows {
		if w.contains(hour) {
			return true
		}
	}
	return false
}

func (m *OrderManager) createOrder() {
	m.mu.Lock()
	m.counter++
	id := fmt.Sprintf("ORD-%04d", m.counter)
	order := &Order{
		ID:        id,
		PizzaType: m.cfg.PizzaTypes[m.rng.Intn(len(m.cfg.PizzaTypes))],
		Size:      m.cfg.Sizes[m.rng.Intn(len(m.cfg.Sizes))],
		Status:    StatusReceived,
		CreatedAt: time.Now(),
	}
	m.orders[id] = order
	queueLen := 0
	for _, o := range m.orders {
		if o.Status != StatusDelivered {
			queueLen++
		}
	}
	estimate := m.estimateTotalTimeLocked(order.PizzaType, order.Size)
	m.mu.Unlock()

	m.sink.Publish(&telemetry.OrderCreated{
		Envelope:           telemetry.NewEnvelope(orderSystemID, telemetry.EquipmentManager, "order_created"),
		OrderID:            order.ID,
		PizzaType:          string(order.PizzaType),
		Size:               string(order.Size),
		Status:             string(order.Status),
		EstimatedTotalTime: estimate,
		CurrentQueueLength: queueLen,
	})
	m.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"pizza":    order.PizzaType,
		"size":     order.Size,
	}).Info("new order")
}

// estimateTotalTimeLocked sums prep and cook time for the size plus a random
// queueing allowance. Caller holds mu (for the rng).
func (m *OrderManager) estimateTotalTimeLocked(pt PizzaType, size Size) int {
	prep, err := PrepTime(size)
	if err != nil {
		return 0
	}
	cook, err := CookTime(size)
	if err != nil {
		return 0
	}
	queueAllowance := uniformJitter(m.rng, 60*time.Second, 180*time.Second)
	return int((prep + cook + queueAllowance).Seconds())
}

// === Completion notifications ===

func (m *OrderManager) handlePrepDone(c Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[c.OrderID]
	if !ok || o.Status != StatusPrep {
		m.log.WithFields(logrus.Fields{"order_id": c.OrderID, "station": c.EquipmentID}).
			Warn("prep completion for order not in prep")
		return
	}
	m.prepDone[c.OrderID] = true
}

func (m *OrderManager) handleBakeDone(c Completion) {
	now := time.Now()

	m.mu.Lock()
	o, ok := m.orders[c.OrderID]
	if !ok || o.Status != StatusBaking {
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{"order_id": c.OrderID, "oven": c.EquipmentID}).
			Warn("bake completion for order not in baking")
		return
	}
	if err := o.advance(StatusReady, now); err != nil {
		m.mu.Unlock()
		m.log.WithError(err).Error("ready transition failed")
		return
	}
	m.dwell[o.ID] = uniformJitter(m.rng, m.cfg.DwellMin, m.cfg.DwellMax)
	update := m.statusUpdateLocked(o, now)
	m.mu.Unlock()

	m.sink.Publish(update)
}

// === Processing sweeps ===

// processOrders runs the per-tick sweeps: RECEIVED into prep stations (small
// batch), completed-PREP into ovens, READY past dwell into DELIVERED.
// Admission failure is silent backpressure; the order is retried next tick.
func (m *OrderManager) processOrders() {
	now := time.Now()
	m.sweepReceived(now)
	m.sweepPrepped(now)
	m.sweepReady(now)
}

// ordersInStatus snapshots matching orders oldest-first. Transitions are
// re-checked under the write lock before being applied, so a stale snapshot
// can never double-apply.
func (m *OrderManager) ordersInStatus(s Status) []*Order {
	m.mu.RLock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == s {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *OrderManager) sweepReceived(now time.Time) {
	received := m.ordersInStatus(StatusReceived)
	if len(received) > m.cfg.PrepBatchSize {
		received = received[:m.cfg.PrepBatchSize]
	}
	for _, o := range received {
		if m.admitTo(m.preps, o) {
			m.applyTransition(o.ID, StatusPrep, now)
		}
	}
}

func (m *OrderManager) sweepPrepped(now time.Time) {
	for _, o := range m.ordersInStatus(StatusPrep) {
		m.mu.RLock()
		done := m.prepDone[o.ID]
		m.mu.RUnlock()
		if !done {
			continue
		}
		if m.admitTo(m.ovens, o) {
			m.mu.Lock()
			delete(m.prepDone, o.ID)
			m.mu.Unlock()
			m.applyTransition(o.ID, StatusBaking, now)
		}
	}
}

func (m *OrderManager) sweepReady(now time.Time) {
	for _, o := range m.ordersInStatus(StatusReady) {
		m.mu.RLock()
		dwell := m.dwell[o.ID]
		readyAt := o.ReadyAt
		m.mu.RUnlock()
		if readyAt.IsZero() || now.Sub(readyAt) <= dwell {
			continue
		}
		m.deliverOrder(o.ID, now)
	}
}

// admitTo offers the order to stations in turn; the first that accepts wins.
// An admission error means bad catalog data and is logged, not retried.
func (m *OrderManager) admitTo(stations []Station, o *Order) bool {
	for _, st := range stations {
		ok, err := st.Admit(o.ID, o.PizzaType, o.Size)
		if err != nil {
			m.log.WithFields(logrus.Fields{"order_id": o.ID, "station": st.ID()}).
				WithError(err).Error("admission rejected order data")
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// applyTransition re-checks and advances the order under the write lock,
// then emits the status update.
func (m *OrderManager) applyTransition(orderID string, next Status, now time.Time) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok || !o.Status.CanAdvanceTo(next) {
		m.mu.Unlock()
		return
	}
	if err := o.advance(next, now); err != nil {
		m.mu.Unlock()
		m.log.WithError(err).Error("transition failed")
		return
	}
	update := m.statusUpdateLocked(o, now)
	m.mu.Unlock()

	m.sink.Publish(update)
}

func (m *OrderManager) statusUpdateLocked(o *Order, now time.Time) *telemetry.OrderStatusUpdate {
	return &telemetry.OrderStatusUpdate{
		Envelope:  telemetry.NewEnvelope(orderSystemID, telemetry.EquipmentManager, "order_status_update"),
		OrderID:   o.ID,
		PizzaType: string(o.PizzaType),
		Size:      string(o.Size),
		Status:    string(o.Status),
		Duration:  int(o.Elapsed(now).Seconds()),
	}
}

func (m *OrderManager) deliverOrder(orderID string, now time.Time) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != StatusReady {
		m.mu.Unlock()
		return
	}
	if err := o.advance(StatusDelivered, now); err != nil {
		m.mu.Unlock()
		m.log.WithError(err).Error("deliver transition failed")
		return
	}
	delete(m.dwell, orderID)
	total, _ := o.TotalTime()
	ev := &telemetry.OrderDelivered{
		Envelope:  telemetry.NewEnvelope(orderSystemID, telemetry.EquipmentManager, "order_delivered"),
		OrderID:   o.ID,
		PizzaType: string(o.PizzaType),
		Size:      string(o.Size),
		Status:    string(o.Status),
		TotalTime: int(total.Seconds()),
		Duration:  int(o.Elapsed(now).Seconds()),
	}
	m.mu.Unlock()

	m.sink.Publish(ev)
	m.log.WithFields(logrus.Fields{"order_id": orderID, "total_time": total}).Info("order delivered")
}

// === Metrics ===

func (m *OrderManager) publishMetrics() {
	now := time.Now()

	m.mu.RLock()
	byStatus := make(map[string]int, len(AllStatuses()))
	for _, s := range AllStatuses() {
		byStatus[string(s)] = 0
	}
	var completed, total int
	var sumTotal time.Duration
	for _, o := range m.orders {
		byStatus[string(o.Status)]++
		total++
		if t, ok := o.TotalTime(); ok {
			completed++
			sumTotal += t
		}
	}
	m.mu.RUnlock()

	avg := 0.0
	if completed > 0 {
		avg = math.Round(sumTotal.Seconds()/float64(completed)*10) / 10
	}
	m.sink.Publish(&telemetry.MetricsUpdate{
		Envelope:          telemetry.NewEnvelope(orderSystemID, telemetry.EquipmentManager, "metrics_update"),
		ActiveOrders:      total - completed,
		CompletedOrders:   completed,
		AvgCompletionTime: avg,
		OrdersByStatus:    byStatus,
		TotalOrdersToday:  total,
		CurrentHourRush:   m.isRushHour(now.Hour()),
	})
}

// === Status query ===

// OrderView is one entry of the recent-orders list.
type OrderView struct {
	OrderID   string        `json:"order_id"`
	PizzaType string        `json:"pizza_type"`
	Size      string        `json:"size"`
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration"`
}

// ManagerSnapshot is a point-in-time read of the registry.
type ManagerSnapshot struct {
	ActiveOrders   int            `json:"active_orders"`
	TotalOrders    int            `json:"total_orders"`
	OrdersByStatus map[string]int `json:"orders_by_status"`
	RecentOrders   []OrderView    `json:"recent_orders"`
}

const recentOrdersLimit = 10

// Snapshot never mutates state and is safe to call concurrently with every
// internal loop.
func (m *OrderManager) Snapshot() ManagerSnapshot {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := make(map[string]int, len(AllStatuses()))
	for _, s := range AllStatuses() {
		byStatus[string(s)] = 0
	}
	var active []*Order
	for _, o := range m.orders {
		byStatus[string(o.Status)]++
		if o.Status != StatusDelivered {
			active = append(active, o)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	if len(active) > recentOrdersLimit {
		active = active[:recentOrdersLimit]
	}
	recent := make([]OrderView, 0, len(active))
	for _, o := range active {
		recent = append(recent, OrderView{
			OrderID:   o.ID,
			PizzaType: string(o.PizzaType),
			Size:      string(o.Size),
			Status:    string(o.Status),
			Duration:  o.Elapsed(now),
		})
	}
	return ManagerSnapshot{
		ActiveOrders:   len(m.orders) - byStatus[string(StatusDelivered)],
		TotalOrders:    len(m.orders),
		OrdersByStatus: byStatus,
		RecentOrders:   recent,
	}
}

// addOrder injects an order directly into the registry. Test hook.
func (m *OrderManager) addOrder(o *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// orderStatus reads one order's status. Test hook.
func (m *OrderManager) orderStatus(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return "", false
	}
	return o.Status, true
}
