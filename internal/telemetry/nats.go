package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const natsSubjectRoot = "pizzeria.events"

// NATSTransport publishes events to pizzeria.events.<equipment_type>.<event_type>.
// Core NATS gives at-most-once delivery, which matches the best-effort
// telemetry contract.
type NATSTransport struct {
	conn *nats.Conn
}

func DialNATS(url string) (*NATSTransport, error) {
	conn, err := nats.Connect(url, nats.Name("pizzeria-simulator"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSTransport{conn: conn}, nil
}

func (t *NATSTransport) Send(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.EventEnvelope().EventType, err)
	}
	env := e.EventEnvelope()
	subject := fmt.Sprintf("%s.%s.%s", natsSubjectRoot, env.EquipmentType, env.EventType)
	msg := nats.NewMsg(subject)
	msg.Header.Set("Nats-Msg-Id", uuid.NewString())
	msg.Data = body
	return t.conn.PublishMsg(msg)
}

func (t *NATSTransport) Close() error {
	t.conn.Close()
	return nil
}
