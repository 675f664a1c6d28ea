package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("destialarm-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alarm.RadiusMeters != 500 || cfg.Alarm.RiderName != "Dshine" || cfg.Alarm.SpeechLang != "en-IN" {
		t.Errorf("unexpected alarm defaults %+v", cfg.Alarm)
	}
	if cfg.Feed.Source != "nats" || cfg.Feed.StaleAfter != 10*time.Second {
		t.Errorf("unexpected feed defaults %+v", cfg.Feed)
	}
	if cfg.Geocoder.Timeout != 10*time.Second {
		t.Errorf("geocoder.timeout = %v", cfg.Geocoder.Timeout)
	}
	if cfg.Telemetry.ServiceName != "destialarm-test" {
		t.Errorf("telemetry.service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DESTIALARM_ALARM_RADIUS_METERS", "750")
	t.Setenv("DESTIALARM_FEED_SOURCE", "mqtt")
	t.Setenv("DESTIALARM_FEED_STALE_AFTER", "30s")

	cfg, err := Load("destialarm-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alarm.RadiusMeters != 750 {
		t.Errorf("alarm.radius_meters = %v, want 750", cfg.Alarm.RadiusMeters)
	}
	if cfg.Feed.Source != "mqtt" || cfg.Feed.StaleAfter != 30*time.Second {
		t.Errorf("unexpected feed %+v", cfg.Feed)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg, err := Load("destialarm-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Alarm.RadiusMeters = -1
	cfg.Feed.Source = "carrier-pigeon"
	cfg.Storage.Enabled = true

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "alarm.radius_meters", "feed.source", "storage.access_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}
