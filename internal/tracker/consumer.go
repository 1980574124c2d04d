package tracker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"pizzeria-system/internal/telemetry"
)

var (
	ErrRequeue = errors.New("requeue")     // nack(requeue=true): transient failure
	ErrDLQ     = errors.New("dead_letter") // nack(requeue=false): poison message
)

// wireEvent is the subset of the flat event record the tracker projects into
// columns. The full message is stored as the payload.
type wireEvent struct {
	EquipmentID   string    `json:"equipment_id"`
	EquipmentType string    `json:"equipment_type"`
	Location      string    `json:"location"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	OrderID       string    `json:"order_id"`
	PizzaType     string    `json:"pizza_type"`
	Size          string    `json:"size"`
	Status        string    `json:"status"`
}

// Consumer drains the event queue into the store.
type Consumer struct {
	store EventStoreInterface
	conn  *amqp.Connection
	ch    *amqp.Channel
	log   *logrus.Entry

	Prefetch int
}

func NewConsumer(cfg telemetry.RabbitConfig, store EventStoreInterface) (*Consumer, error) {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	url := fmt.Sprintf("%s://%s:%s@%s:%d/%s", scheme, cfg.User, cfg.Password, cfg.Host, cfg.Port, vhost)
	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(url, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(url)
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := telemetry.DeclareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{
		store:    store,
		conn:     conn,
		ch:       ch,
		log:      logrus.WithField("component", "tracker_consumer"),
		Prefetch: 16,
	}, nil
}

// Run consumes until ctx is cancelled, then stops the consumer and drains
// in-flight deliveries.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	const tag = "pizzeria-tracker"
	msgs, err := c.ch.Consume(telemetry.EventsQueue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", telemetry.EventsQueue, err)
	}
	c.log.WithField("queue", telemetry.EventsQueue).Info("consuming events")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range msgs {
			err := c.processOne(ctx, d)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrDLQ):
				c.log.WithField("routing_key", d.RoutingKey).Warn("dead-lettering event")
				_ = d.Nack(false, false)
			default:
				_ = d.Nack(false, true)
			}
		}
	}()

	<-ctx.Done()
	_ = c.ch.Cancel(tag, false)
	<-done
	return ctx.Err()
}

func (c *Consumer) processOne(ctx context.Context, d amqp.Delivery) error {
	var ev wireEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return ErrDLQ
	}
	if ev.EventType == "" || ev.EquipmentID == "" {
		return ErrDLQ
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	rec := EventRecord{
		EquipmentID:   ev.EquipmentID,
		EquipmentType: ev.EquipmentType,
		Location:      ev.Location,
		EventType:     ev.EventType,
		Timestamp:     ev.Timestamp,
		OrderID:       ev.OrderID,
		Payload:       d.Body,
	}
	if err := c.store.InsertEvent(ctx, rec); err != nil {
		c.log.WithError(err).Error("event insert failed")
		return ErrRequeue
	}

	// Order lifecycle events also refresh the status projection.
	if ev.OrderID != "" && ev.Status != "" {
		err := c.store.UpsertOrderStatus(ctx, OrderStatusView{
			OrderID:   ev.OrderID,
			PizzaType: ev.PizzaType,
			Size:      ev.Size,
			Status:    ev.Status,
			UpdatedAt: ev.Timestamp,
		})
		if err != nil {
			c.log.WithError(err).Error("status projection failed")
			return ErrRequeue
		}
	}
	return nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
