package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// DeviceCommand is the payload sent to the rider's handset.
type DeviceCommand struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	Lang   string `json:"lang,omitempty"`
	URL    string `json:"url,omitempty"`
	Loop   bool   `json:"loop,omitempty"`
}

// Device drives the handset's speech synthesiser and alarm player over NATS.
// It implements ports.Speaker and ports.AlarmPlayer.
type Device struct {
	conn     *nats.Conn
	soundURL string
}

// NewDevice creates a device commander. soundURL is the looping alarm clip.
func NewDevice(conn *nats.Conn, soundURL string) *Device {
	return &Device{conn: conn, soundURL: soundURL}
}

func (d *Device) Speak(ctx context.Context, u domain.Utterance) error {
	return d.send(SubjectDeviceSpeech, domain.ErrSpeechUnavailable, DeviceCommand{Action: "speak", Text: u.Text, Lang: u.Lang})
}

func (d *Device) Cancel(ctx context.Context) error {
	return d.send(SubjectDeviceSpeech, domain.ErrSpeechUnavailable, DeviceCommand{Action: "cancel"})
}

func (d *Device) Play(ctx context.Context) error {
	return d.send(SubjectDeviceAudio, domain.ErrAudioUnavailable, DeviceCommand{Action: "play", URL: d.soundURL, Loop: true})
}

func (d *Device) Pause(ctx context.Context) error {
	return d.send(SubjectDeviceAudio, domain.ErrAudioUnavailable, DeviceCommand{Action: "pause"})
}

func (d *Device) Rewind(ctx context.Context) error {
	return d.send(SubjectDeviceAudio, domain.ErrAudioUnavailable, DeviceCommand{Action: "rewind"})
}

func (d *Device) send(subject string, unavailable error, cmd DeviceCommand) error {
	if d.conn == nil || !d.conn.IsConnected() {
		return unavailable
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := d.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: %v", unavailable, err)
	}
	return nil
}
