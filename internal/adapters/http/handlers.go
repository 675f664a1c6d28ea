package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
)

// StatusHandler returns the status panel snapshot.
func StatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Navigator.Status())
	}
}

// RouteHandler returns the live route as a GeoJSON LineString feature.
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		route := deps.Navigator.Route()
		if route == nil {
			return errNotFound(c, "no route for the current destination")
		}
		return c.JSON(routeFeature(route))
	}
}

func routeFeature(route *domain.Route) *geojson.Feature {
	f := geojson.NewFeature(geospatial.ToLineString(route.Path))
	f.Properties["destination_id"] = route.DestinationID
	f.Properties["distance_km"] = route.DistanceKm
	f.Properties["computed_at"] = route.ComputedAt.UTC().Format(time.RFC3339)
	return f
}

type destinationRequest struct {
	Query string `json:"query"`
}

// SetDestinationHandler geocodes the query and makes it the live destination.
func SetDestinationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req destinationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Query) > 300 {
			return errBadRequest(c, "query too long (max 300 characters)")
		}

		dest, err := deps.Navigator.SetDestination(c.UserContext(), req.Query)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(dest)
	}
}

type radiusRequest struct {
	RadiusMeters *float64 `json:"radius_meters"`
}

// SetAlarmRadiusHandler changes the alarm radius.
func SetAlarmRadiusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req radiusRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.RadiusMeters == nil {
			return errBadRequest(c, "radius_meters is required")
		}
		if err := deps.Navigator.SetAlarmRadius(c.UserContext(), *req.RadiusMeters); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(deps.Navigator.Status())
	}
}

// AlarmControlHandler runs one of the manual alarm controls and returns the new status.
func AlarmControlHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		var err error
		switch c.Params("action") {
		case "stop":
			err = deps.Navigator.StopAlarm(ctx)
		case "replay":
			err = deps.Navigator.ReplayAlarm(ctx)
		case "reset":
			err = deps.Navigator.ResetAlarm(ctx)
		default:
			return errNotFound(c, "unknown alarm action: "+c.Params("action"))
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(deps.Navigator.Status())
	}
}

type positionRequest struct {
	DeviceID string     `json:"device_id"`
	Lat      *float64   `json:"lat"`
	Lon      *float64   `json:"lon"`
	Speed    *float64   `json:"speed"`
	Accuracy float64    `json:"accuracy"`
	Time     *time.Time `json:"time"`
}

// PostPositionHandler feeds one position sample, for devices without a broker connection.
func PostPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Lat == nil || req.Lon == nil {
			return errBadRequest(c, "lat and lon are required")
		}
		if req.Speed != nil && *req.Speed < 0 {
			return errBadRequest(c, "speed must not be negative")
		}

		pos := domain.Position{
			DeviceID: req.DeviceID,
			Location: domain.GeoPoint{Lat: *req.Lat, Lon: *req.Lon},
			Speed:    req.Speed,
			Accuracy: req.Accuracy,
		}
		if req.Time != nil {
			pos.Time = *req.Time
		}

		if err := deps.Navigator.HandlePosition("http")(c.UserContext(), &pos); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(deps.Navigator.Status())
	}
}

// ListAlertsHandler returns journaled notifications, newest first.
func ListAlertsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Journal == nil {
			return errUnavailable(c, "journal not available")
		}
		offset, limit := pageParams(c, 50, 200)

		page, err := deps.Journal.ListNotifications(c.UserContext(), offset, limit)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list alerts", "error", err)
			return errInternal(c, "could not load alerts")
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: page.Total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page.Items, Pagination: pg})
	}
}

// RecentTripsHandler returns the latest trips.
func RecentTripsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Journal == nil {
			return errUnavailable(c, "journal not available")
		}
		trips, err := deps.Journal.RecentTrips(c.UserContext(), c.QueryInt("limit", 20))
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list trips", "error", err)
			return errInternal(c, "could not load trips")
		}
		if trips == nil {
			trips = []domain.Trip{}
		}
		return c.JSON(trips)
	}
}
