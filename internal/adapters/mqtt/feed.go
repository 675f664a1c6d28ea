package mqttadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// TopicPattern matches every device's position topic.
const TopicPattern = "/destialarm/device/+/position"

// PositionTopic returns the topic a device publishes on.
func PositionTopic(deviceID string) string {
	return "/destialarm/device/" + deviceID + "/position"
}

// LocationMessage is the MQTT wire format sent by handsets.
type LocationMessage struct {
	DeviceID  string   `json:"device_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// NewClient connects to the broker.
func NewClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(15*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// Feed implements ports.PositionFeed over MQTT.
type Feed struct {
	client mqtt.Client
	qos    byte
}

// NewFeed creates a position feed on an already connected client.
func NewFeed(client mqtt.Client, qos byte) *Feed {
	return &Feed{client: client, qos: qos}
}

// Subscribe delivers samples to handler until ctx is cancelled.
func (f *Feed) Subscribe(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error {
	token := f.client.Subscribe(TopicPattern, f.qos, func(_ mqtt.Client, msg mqtt.Message) {
		pos, err := ParseMessage(msg.Topic(), msg.Payload())
		if err != nil {
			slog.Warn("invalid location message", "topic", msg.Topic(), "error", err)
			return
		}
		if err := handler(ctx, pos); err != nil {
			slog.Warn("position rejected", "device", pos.DeviceID, "error", err)
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	<-ctx.Done()
	f.client.Unsubscribe(TopicPattern).WaitTimeout(2 * time.Second)
	return nil
}

// Publisher sends samples the way a handset does.
type Publisher struct {
	client mqtt.Client
	qos    byte
}

func NewPublisher(client mqtt.Client, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos}
}

// PublishPosition sends pos on its device topic and waits for the broker.
func (p *Publisher) PublishPosition(ctx context.Context, pos *domain.Position) error {
	payload, err := json.Marshal(NewLocationMessage(pos))
	if err != nil {
		return err
	}
	token := p.client.Publish(PositionTopic(pos.DeviceID), p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewLocationMessage is the inverse of ParseMessage.
func NewLocationMessage(pos *domain.Position) LocationMessage {
	return LocationMessage{
		DeviceID:  pos.DeviceID,
		Latitude:  pos.Location.Lat,
		Longitude: pos.Location.Lon,
		Speed:     pos.Speed,
		Accuracy:  pos.Accuracy,
		Timestamp: pos.Time.Unix(),
	}
}

// ParseMessage decodes and validates one message. A missing device ID is
// taken from the topic.
func ParseMessage(topic string, payload []byte) (*domain.Position, error) {
	var raw LocationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if raw.DeviceID == "" {
		raw.DeviceID = deviceFromTopic(topic)
	}
	if err := validate(&raw); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if raw.Timestamp > 0 {
		ts = time.Unix(raw.Timestamp, 0).UTC()
	}
	return &domain.Position{
		DeviceID: raw.DeviceID,
		Location: domain.GeoPoint{Lat: raw.Latitude, Lon: raw.Longitude},
		Speed:    raw.Speed,
		Accuracy: raw.Accuracy,
		Time:     ts,
	}, nil
}

func deviceFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) == 4 && parts[0] == "destialarm" && parts[1] == "device" {
		return parts[2]
	}
	return ""
}

func validate(msg *LocationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Speed != nil && *msg.Speed < 0 {
		return fmt.Errorf("speed: must not be negative")
	}
	if msg.Timestamp < 0 {
		return fmt.Errorf("timestamp: must not be negative")
	}
	return nil
}
