package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/destialarm/internal/core/usecases"
)

// Pinger is an optional dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Navigator *usecases.NavigatorService
	Journal   *usecases.JournalService
	NATS      *nats.Conn
	DB        Pinger
	Cache     Pinger
	Archive   Pinger
	DocsPath  string // path to openapi.yaml, default api/openapi.yaml
	Version   string
}
