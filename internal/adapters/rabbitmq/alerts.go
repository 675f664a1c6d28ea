package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/ports"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

var _ ports.AlertPublisher = (*AlertPublisher)(nil)

const (
	exchangeName = "destialarm.alerts"
	queueName    = "destialarm_alerts"
)

// Dial connects to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}

// AlertPublisher fans alert notifications out on a fanout exchange.
type AlertPublisher struct {
	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch *amqp.Channel
}

func NewAlertPublisher(conn *amqp.Connection) (*AlertPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AlertPublisher{ch: ch}, nil
}

// AlertMessage is the body published for every alert.
type AlertMessage struct {
	DestinationID string `json:"destination_id,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
}

func newAlertMessage(n *domain.Notification) AlertMessage {
	return AlertMessage{
		DestinationID: n.DestinationID,
		Stage:         string(n.Stage),
		Message:       n.Message,
		Timestamp:     n.CreatedAt.Unix(),
	}
}

func (p *AlertPublisher) PublishAlert(ctx context.Context, n *domain.Notification) error {
	ctx, span := otel.Tracer("destialarm/rabbitmq").Start(ctx, telemetry.SpanAlertFanout)
	defer span.End()
	span.SetAttributes(attribute.String("alert.destination_id", n.DestinationID))

	body, err := json.Marshal(newAlertMessage(n))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

// Close closes the channel.
func (p *AlertPublisher) Close() error {
	return p.ch.Close()
}
