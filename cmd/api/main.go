package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/samirrijal/destialarm/internal/adapters/http"
	mqttadapter "github.com/samirrijal/destialarm/internal/adapters/mqtt"
	natsadapter "github.com/samirrijal/destialarm/internal/adapters/nats"
	"github.com/samirrijal/destialarm/internal/adapters/nominatim"
	"github.com/samirrijal/destialarm/internal/adapters/objectstore"
	"github.com/samirrijal/destialarm/internal/adapters/osrm"
	"github.com/samirrijal/destialarm/internal/adapters/postgres"
	"github.com/samirrijal/destialarm/internal/adapters/rabbitmq"
	"github.com/samirrijal/destialarm/internal/adapters/valkey"
	"github.com/samirrijal/destialarm/internal/core/ports"
	"github.com/samirrijal/destialarm/internal/core/usecases"
	"github.com/samirrijal/destialarm/internal/pkg/config"
	"github.com/samirrijal/destialarm/internal/pkg/logging"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
	"github.com/samirrijal/destialarm/internal/workflows"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load("destialarm-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolMetrics(ctx, 15*time.Second)

	notificationRepo := postgres.NewNotificationRepo(db)
	tripRepo := postgres.NewTripRepo(db)

	navPorts := usecases.NavigatorPorts{
		Geocoder: nominatim.New(nominatim.Config{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.Geocoder.UserAgent,
			Language:  cfg.Geocoder.Language,
			Timeout:   cfg.Geocoder.Timeout,
		}),
		Router: osrm.New(osrm.Config{
			BaseURL: cfg.Router.BaseURL,
			Profile: cfg.Router.Profile,
			Timeout: cfg.Router.Timeout,
		}),
		Journal: notificationRepo,
		Trips:   tripRepo,
	}
	deps := &http.Dependencies{
		DB:      db,
		Version: version,
	}

	// Cache
	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer c.Close()
		cache = c
		navPorts.Cache = c
		deps.Cache = c
	}

	// NATS: status events, device commands and the WebSocket relay.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, speech and alarm devices disabled", "error", err)
		device := natsadapter.NewDevice(nil, cfg.Alarm.SoundURL)
		navPorts.Speaker = device
		navPorts.Alarm = device
	} else {
		defer pub.Close()
		device := natsadapter.NewDevice(pub.Conn(), cfg.Alarm.SoundURL)
		navPorts.Events = pub
		navPorts.Speaker = device
		navPorts.Alarm = device
		deps.NATS = pub.Conn()
	}

	// RabbitMQ alert fan-out
	if cfg.RabbitMQ.Enabled {
		if conn, err := rabbitmq.Dial(cfg.RabbitMQ.URL); err != nil {
			slog.Warn("rabbitmq unavailable", "error", err)
		} else {
			defer conn.Close()
			alerts, err := rabbitmq.NewAlertPublisher(conn)
			if err != nil {
				slog.Warn("rabbitmq alert channel", "error", err)
			} else {
				defer alerts.Close()
				navPorts.Alerts = alerts
			}
		}
	}

	// Trip archive
	if cfg.Storage.Enabled {
		archive, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			slog.Warn("trip archive unavailable", "error", err)
		} else if err := archive.EnsureBucket(ctx); err != nil {
			slog.Warn("trip archive bucket", "error", err)
		} else {
			navPorts.Archive = archive
			deps.Archive = archive
		}
	}

	// With Temporal the archiver worker uploads the trip and retries on failure.
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    sdklog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("temporal unavailable, archiving in-process", "error", err)
		} else {
			defer tc.Close()
			navPorts.Archive = workflows.NewDispatcher(tc, cfg.Temporal.TaskQueue)
		}
	}

	nav := usecases.NewNavigatorService(navPorts, usecases.NavigatorConfig{
		AlarmRadius: cfg.Alarm.RadiusMeters,
		Messages:    usecases.DefaultMessages(cfg.Alarm.RiderName),
		SpeechLang:  cfg.Alarm.SpeechLang,
		StaleAfter:  cfg.Feed.StaleAfter,
	})
	deps.Navigator = nav
	deps.Journal = usecases.NewJournalService(notificationRepo, tripRepo, cache)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := nav.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("navigator stopped", "error", err)
		}
	}()

	feed, source, err := positionFeed(cfg, pub)
	if err != nil {
		slog.Error("position feed unavailable", "source", cfg.Feed.Source, "error", err)
		_ = nav.ReportSensorFailure(ctx, err)
	} else if feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("position feed starting", "source", source)
			if err := feed.Subscribe(ctx, nav.HandlePosition(source)); err != nil {
				slog.Error("position feed failed", "source", source, "error", err)
				_ = nav.ReportSensorFailure(ctx, err)
			}
		}()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "DestiAlarm API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// Stop the feed and the navigator; Run waits for journal and archive writes.
	cancel()
	wg.Wait()

	slog.Info("server stopped")
}

// positionFeed returns the configured feed, or nil when samples only arrive over HTTP.
func positionFeed(cfg *config.Config, pub *natsadapter.Publisher) (ports.PositionFeed, string, error) {
	switch cfg.Feed.Source {
	case "nats":
		if pub == nil {
			return nil, "nats", errors.New("nats not connected")
		}
		feed, err := natsadapter.NewFeed(pub.Conn())
		return feed, "nats", err
	case "mqtt":
		client, err := mqttadapter.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return nil, "mqtt", err
		}
		return mqttadapter.NewFeed(client, byte(cfg.MQTT.QoS)), "mqtt", nil
	}
	return nil, "http", nil
}
