package natsadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

func TestDecodePosition_DeviceFromSubject(t *testing.T) {
	pos, err := decodePosition("destialarm.position.bike-7", []byte(`{"location":{"lat":12.97,"lon":77.59},"speed":4.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.DeviceID != "bike-7" {
		t.Errorf("DeviceID = %q, want bike-7", pos.DeviceID)
	}
	if pos.Location.Lat != 12.97 || pos.Speed == nil || *pos.Speed != 4.5 {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestDecodePosition_PayloadDeviceWins(t *testing.T) {
	pos, err := decodePosition("destialarm.position.x", []byte(`{"device_id":"phone","location":{"lat":1,"lon":2}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.DeviceID != "phone" {
		t.Errorf("DeviceID = %q, want phone", pos.DeviceID)
	}
}

func TestDecodePosition_Malformed(t *testing.T) {
	if _, err := decodePosition("destialarm.position.x", []byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNotificationSubject(t *testing.T) {
	n := &domain.Notification{Kind: domain.NotificationAlert}
	if got := notificationSubject(n); got != "destialarm.alerts.alert" {
		t.Errorf("notificationSubject = %q", got)
	}
}

func TestDevice_Disconnected(t *testing.T) {
	d := NewDevice(nil, "https://example.com/alarm.mp3")
	ctx := context.Background()

	if err := d.Speak(ctx, domain.Utterance{Text: "hi"}); !errors.Is(err, domain.ErrSpeechUnavailable) {
		t.Errorf("Speak: expected ErrSpeechUnavailable, got %v", err)
	}
	if err := d.Play(ctx); !errors.Is(err, domain.ErrAudioUnavailable) {
		t.Errorf("Play: expected ErrAudioUnavailable, got %v", err)
	}
}
