package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "pizzeria.events"
	EventsQueue    = "pizzeria.events.q"
	DeadLetterExch = "pizzeria.dlx"
	DeadLetterQ    = "pizzeria.dlq"
)

type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	UseTLS   bool
}

func (c RabbitConfig) url() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	scheme := "amqp"
	if c.UseTLS {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s", scheme, c.User, c.Password, c.Host, c.Port, vhost)
}

// RabbitTransport publishes events to a topic exchange with routing key
// <equipment_type>.<event_type>. Waits for publisher confirms so a broker
// NACK surfaces as an error to the async sink's logger.
type RabbitTransport struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	acks <-chan amqp.Confirmation
	mu   sync.Mutex // serializes publish+confirm pairs
}

func DialRabbit(cfg RabbitConfig) (*RabbitTransport, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(cfg.url(), &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(cfg.url())
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return &RabbitTransport{conn: conn, ch: ch, acks: acks}, nil
}

// DeclareTopology is idempotent: exchange for the event stream plus a durable
// queue with a dead-letter pair for the tracker consumer.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", EventsExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExch, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterExch, err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterQ, err)
	}
	if err := ch.QueueBind(DeadLetterQ, "dlq", DeadLetterExch, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", DeadLetterQ, err)
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExch,
		"x-dead-letter-routing-key": "dlq",
	}); err != nil {
		return fmt.Errorf("declare %s: %w", EventsQueue, err)
	}
	if err := ch.QueueBind(EventsQueue, "#", EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", EventsQueue, err)
	}
	return nil
}

// RoutingKey derives the routing key for an event.
func RoutingKey(e Event) string {
	env := e.EventEnvelope()
	return fmt.Sprintf("%s.%s", env.EquipmentType, env.EventType)
}

func (t *RabbitTransport) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.EventEnvelope().EventType, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	err = t.ch.PublishWithContext(ctx, EventsExchange, RoutingKey(e), false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: e.EventEnvelope().EquipmentID,
		Timestamp:     time.Now().UTC(),
		Headers: amqp.Table{
			"x-source": "pizzeria-simulator",
		},
		Body: body,
	})
	if err != nil {
		return err
	}

	select {
	case conf := <-t.acks:
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping reports whether the underlying connection is still open.
func (t *RabbitTransport) Ping() error {
	if t.conn == nil || t.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (t *RabbitTransport) Close() error {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
