//go:build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/destialarm/internal/adapters/http"
	"github.com/samirrijal/destialarm/internal/adapters/postgres"
	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/usecases"
	"github.com/samirrijal/destialarm/internal/pkg/config"
)

// setupTestDB connects to the database configured for this environment.
// Migrations must have been applied with cmd/migrate.
func setupTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	cfg, err := config.Load("destialarm-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// setupTestDeps wires a navigator whose journal and trips are the real repositories.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	t.Helper()
	notifications := postgres.NewNotificationRepo(db)
	trips := postgres.NewTripRepo(db)

	nav := usecases.NewNavigatorService(usecases.NavigatorPorts{
		Geocoder: &mockGeocoder{},
		Router:   &mockRouter{},
		Journal:  notifications,
		Trips:    trips,
	}, usecases.NavigatorConfig{Messages: usecases.DefaultMessages("Dshine")})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = nav.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &http.Dependencies{
		Navigator: nav,
		Journal:   usecases.NewJournalService(notifications, trips, nil),
		DB:        db,
	}
}

func TestReady_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	app := setupApp(setupTestDeps(t, setupTestDB(t)))
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// TestNearAlertJournaled_Integration drives the rider into the alarm zone and
// reads the alert back through /v1/alerts.
func TestNearAlertJournaled_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db))

	post := func(path, body string) int {
		req := httptest.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp.StatusCode
	}

	if code := post("/v1/destination", `{"query":"integration home"}`); code != 201 {
		t.Fatalf("set destination: %d", code)
	}
	// ~330 m north of the destination: inside the default 500 m radius.
	if code := post("/v1/positions", `{"lat":12.9746,"lon":77.5946}`); code != 202 {
		t.Fatalf("post position: %d", code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/alerts?limit=20", nil), -1)
		if err != nil {
			t.Fatalf("list alerts: %v", err)
		}
		var result struct {
			Data []domain.Notification `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		for _, n := range result.Data {
			if n.Kind == domain.NotificationAlert && strings.Contains(n.Message, "within 500 meters") {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("near alert not journaled; got %+v", result.Data)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
