package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// Subjects used on the bus.
const (
	SubjectStatus        = "destialarm.status"
	SubjectAlerts        = "destialarm.alerts"
	SubjectPositions     = "destialarm.position"
	SubjectDeviceSpeech  = "destialarm.device.speech"
	SubjectDeviceAudio   = "destialarm.device.audio"
	streamAlerts         = "DESTIALARM_ALERTS"
	streamPositions      = "DESTIALARM_POSITIONS"
	positionConsumerName = "destialarm-navigator"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and ensures the streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      streamPositions,
			Subjects:  []string{SubjectPositions + ".>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      streamAlerts,
			Subjects:  []string{SubjectAlerts + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishStatus broadcasts a status snapshot. Status is ephemeral and bypasses JetStream.
func (p *Publisher) PublishStatus(ctx context.Context, status *domain.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectStatus, data)
}

// PublishNotification persists a notification on the alerts stream.
func (p *Publisher) PublishNotification(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(notificationSubject(n), data, nats.Context(ctx))
	return err
}

// PublishPosition enqueues a sample on the positions stream.
func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(PositionSubject(pos.DeviceID), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for components sharing it.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

func notificationSubject(n *domain.Notification) string {
	return SubjectAlerts + "." + string(n.Kind)
}

// RawConn creates a plain NATS connection (WebSocket relay, simulator, device commands).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("destialarm"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
