package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// TaskQueue is the default queue the archiver worker polls.
const TaskQueue = "destialarm-archive"

// TripArchiveInput is the input for the trip archive workflow.
type TripArchiveInput struct {
	Trip  domain.Trip       `json:"trip"`
	Route *domain.Route     `json:"route,omitempty"`
	Track []domain.GeoPoint `json:"track"`
}

// TripArchiveWorkflow writes the trip GeoJSON to object storage and verifies
// the stored object. If verification fails the partial object is deleted.
func TripArchiveWorkflow(ctx workflow.Context, input TripArchiveInput) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Archiving trip", "destination", input.Trip.DestinationID, "points", len(input.Track))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	})

	var key string
	if err := workflow.ExecuteActivity(ctx, "PutTrip", input).Get(ctx, &key); err != nil {
		return "", err
	}

	if err := workflow.ExecuteActivity(ctx, "VerifyTrip", key).Get(ctx, nil); err != nil {
		logger.Warn("archived object failed verification, removing", "key", key, "error", err)
		_ = workflow.ExecuteActivity(ctx, "DeleteTrip", key).Get(ctx, nil)
		return "", err
	}

	logger.Info("Trip archived", "key", key)
	return key, nil
}
