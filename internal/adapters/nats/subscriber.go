package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// Feed implements ports.PositionFeed on the positions stream.
type Feed struct {
	js nats.JetStreamContext
}

// NewFeed creates a position feed sharing the publisher's connection.
func NewFeed(conn *nats.Conn) (*Feed, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Feed{js: js}, nil
}

// Subscribe delivers samples to handler until ctx is cancelled.
func (f *Feed) Subscribe(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error {
	sub, err := f.js.Subscribe(SubjectPositions+".>", func(msg *nats.Msg) {
		pos, err := decodePosition(msg.Subject, msg.Data)
		if err != nil {
			slog.Warn("dropping malformed position", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, pos); err != nil {
			if errors.Is(err, domain.ErrInvalidPosition) {
				_ = msg.Term()
				return
			}
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(positionConsumerName),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe positions: %w", err)
	}

	<-ctx.Done()
	// Keep the durable consumer so the stream retains samples across restarts.
	if err := sub.Drain(); err != nil {
		slog.Warn("drain position subscription", "error", err)
	}
	return nil
}

// decodePosition parses a sample and fills the device ID from the subject
// (destialarm.position.<device>) when the payload omits it.
func decodePosition(subject string, data []byte) (*domain.Position, error) {
	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, err
	}
	if pos.DeviceID == "" {
		pos.DeviceID = strings.TrimPrefix(subject, SubjectPositions+".")
	}
	return &pos, nil
}

// PositionSubject is the subject a device publishes its samples on.
func PositionSubject(deviceID string) string {
	return SubjectPositions + "." + deviceID
}
