package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	mqttadapter "github.com/samirrijal/destialarm/internal/adapters/mqtt"
	natsadapter "github.com/samirrijal/destialarm/internal/adapters/nats"
	"github.com/samirrijal/destialarm/internal/adapters/osrm"
	"github.com/samirrijal/destialarm/internal/pkg/config"
	"github.com/samirrijal/destialarm/internal/pkg/logging"
	"github.com/samirrijal/destialarm/internal/simulator"
)

func main() {
	from := flag.String("from", "", "start coordinate as lat,lon")
	to := flag.String("to", "", "end coordinate as lat,lon")
	interval := flag.Duration("interval", time.Second, "time between samples")
	speed := flag.Float64("speed", 30, "ride speed in km/h")
	transport := flag.String("transport", "nats", "nats or mqtt")
	device := flag.String("device", "simulator-1", "device id")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load("destialarm-simulator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")

	src, err := simulator.ParseCoord(*from)
	if err != nil {
		log.Fatalf("--from: %v", err)
	}
	dst, err := simulator.ParseCoord(*to)
	if err != nil {
		log.Fatalf("--to: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := osrm.New(osrm.Config{BaseURL: cfg.Router.BaseURL, Profile: cfg.Router.Profile, Timeout: cfg.Router.Timeout})
	route, err := router.Route(ctx, src, dst)
	if err != nil {
		log.Fatalf("route: %v", err)
	}
	slog.Info("route fetched", "distance_km", route.DistanceKm, "vertices", len(route.Path.Coordinates))

	var sink simulator.Sink
	switch *transport {
	case "nats":
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer pub.Close()
		sink = pub
	case "mqtt":
		client, err := mqttadapter.NewClient(cfg.MQTT.Broker, *device)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer client.Disconnect(250)
		sink = mqttadapter.NewPublisher(client, byte(cfg.MQTT.QoS))
	default:
		log.Fatalf("unknown transport: %s", *transport)
	}

	if _, err := simulator.Ride(ctx, sink, route.Path, simulator.Config{
		DeviceID: *device,
		SpeedKmh: *speed,
		Interval: *interval,
	}); err != nil {
		slog.Error("ride aborted", "error", err)
	}
}
