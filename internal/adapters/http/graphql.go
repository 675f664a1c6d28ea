package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the navigator and journal.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
		},
	})

	positionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Position",
		Fields: graphql.Fields{
			"device_id": &graphql.Field{Type: graphql.String},
			"location":  &graphql.Field{Type: geoPointType},
			"speed":     &graphql.Field{Type: graphql.Float, Description: "meters per second"},
			"accuracy":  &graphql.Field{Type: graphql.Float},
			"time":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	destinationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Destination",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"query":    &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
			"set_at":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	alarmType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Alarm",
		Fields: graphql.Fields{
			"armed":  &graphql.Field{Type: graphql.Boolean},
			"active": &graphql.Field{Type: graphql.Boolean},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Status",
		Fields: graphql.Fields{
			"position":          &graphql.Field{Type: positionType},
			"speed":             &graphql.Field{Type: graphql.String},
			"destination":       &graphql.Field{Type: destinationType},
			"route_distance_km": &graphql.Field{Type: graphql.Float},
			"distance_meters":   &graphql.Field{Type: graphql.Float},
			"alarm_radius":      &graphql.Field{Type: graphql.Float},
			"alarm_zone":        &graphql.Field{Type: boundsType},
			"stage":             &graphql.Field{Type: graphql.String},
			"alarm":             &graphql.Field{Type: alarmType},
			"sensor":            &graphql.Field{Type: graphql.String},
			"updated_at":        &graphql.Field{Type: graphql.DateTime},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"destination_id": &graphql.Field{Type: graphql.String},
			"distance_km":    &graphql.Field{Type: graphql.Float},
			"from":           &graphql.Field{Type: geoPointType},
			"computed_at":    &graphql.Field{Type: graphql.DateTime},
			"coordinates": &graphql.Field{
				Type: graphql.NewList(geoPointType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					r, _ := p.Source.(*domain.Route)
					if r == nil {
						return nil, nil
					}
					return r.Path.Coordinates, nil
				},
			},
		},
	})

	notificationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Notification",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.Int},
			"destination_id": &graphql.Field{Type: graphql.String},
			"kind":           &graphql.Field{Type: graphql.String},
			"stage":          &graphql.Field{Type: graphql.String},
			"message":        &graphql.Field{Type: graphql.String},
			"created_at":     &graphql.Field{Type: graphql.DateTime},
		},
	})

	notificationPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NotificationPage",
		Fields: graphql.Fields{
			"items": &graphql.Field{Type: graphql.NewList(notificationType)},
			"total": &graphql.Field{Type: graphql.Int},
		},
	})

	status := func(p graphql.ResolveParams) (interface{}, error) {
		return deps.Navigator.Status(), nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"status": &graphql.Field{
				Type:        statusType,
				Description: "Current status panel",
				Resolve:     status,
			},
			"route": &graphql.Field{
				Type:        routeType,
				Description: "Live route towards the destination, null until computed",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := deps.Navigator.Route(); r != nil {
						return r, nil
					}
					return nil, nil
				},
			},
			"alerts": &graphql.Field{
				Type:        notificationPageType,
				Description: "Journaled announcements and alerts, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Journal == nil {
						return nil, errJournalUnavailable
					}
					return deps.Journal.ListNotifications(p.Context, p.Args["offset"].(int), p.Args["limit"].(int))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"setDestination": &graphql.Field{
				Type:        destinationType,
				Description: "Geocode a query and make it the live destination",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Navigator.SetDestination(p.Context, p.Args["query"].(string))
				},
			},
			"setAlarmRadius": &graphql.Field{
				Type: statusType,
				Args: graphql.FieldConfigArgument{
					"meters": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Navigator.SetAlarmRadius(p.Context, p.Args["meters"].(float64)); err != nil {
						return nil, err
					}
					return status(p)
				},
			},
			"stopAlarm": &graphql.Field{
				Type: statusType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Navigator.StopAlarm(p.Context); err != nil {
						return nil, err
					}
					return status(p)
				},
			},
			"replayAlarm": &graphql.Field{
				Type: statusType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Navigator.ReplayAlarm(p.Context); err != nil {
						return nil, err
					}
					return status(p)
				},
			},
			"resetAlarm": &graphql.Field{
				Type: statusType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Navigator.ResetAlarm(p.Context); err != nil {
						return nil, err
					}
					return status(p)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		return c.JSON(result)
	}
}
