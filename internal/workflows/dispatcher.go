package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/ports"
)

var _ ports.TripArchive = (*Dispatcher)(nil)

// Dispatcher implements ports.TripArchive by running TripArchiveWorkflow on
// a Temporal worker and waiting for its result.
type Dispatcher struct {
	client    client.Client
	taskQueue string
}

func NewDispatcher(c client.Client, taskQueue string) *Dispatcher {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Dispatcher{client: c, taskQueue: taskQueue}
}

func (d *Dispatcher) Archive(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error) {
	run, err := d.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		// One archive per destination; a retried arrival reuses the same run.
		ID:        "trip-archive-" + trip.DestinationID,
		TaskQueue: d.taskQueue,
	}, TripArchiveWorkflow, TripArchiveInput{Trip: *trip, Route: route, Track: track})
	if err != nil {
		return "", fmt.Errorf("start archive workflow: %w", err)
	}

	var key string
	if err := run.Get(ctx, &key); err != nil {
		return "", fmt.Errorf("archive workflow %s: %w", run.GetRunID(), err)
	}
	return key, nil
}
