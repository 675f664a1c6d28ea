package usecases

import (
	"math"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
)

// Distance thresholds in meters.
const (
	DefaultAlarmRadius   = 500.0
	RouteRefreshDistance = 500.0
	FarDistance          = 2000.0
	MidDistance          = 1000.0
	ArrivalDistance      = 150.0
)

// EffectKind identifies a side effect requested by the ProximityNotifier.
type EffectKind int

const (
	EffectSpeak EffectKind = iota + 1
	EffectCancelSpeech
	EffectStartAlarm // rewind and play the alarm loop
	EffectStopAlarm  // pause and rewind the alarm loop
	EffectAlert
	EffectRequestRoute
	EffectStageChanged
)

func (k EffectKind) String() string {
	switch k {
	case EffectSpeak:
		return "speak"
	case EffectCancelSpeech:
		return "cancel_speech"
	case EffectStartAlarm:
		return "start_alarm"
	case EffectStopAlarm:
		return "stop_alarm"
	case EffectAlert:
		return "alert"
	case EffectRequestRoute:
		return "request_route"
	case EffectStageChanged:
		return "stage_changed"
	}
	return "unknown"
}

// Effect is one side effect. Which fields are set depends on Kind.
type Effect struct {
	Kind          EffectKind
	Text          string
	Stage         domain.Stage
	DestinationID string
	From          domain.GeoPoint
	To            domain.GeoPoint
	Seq           uint64 // route request sequence
}

// ProximityNotifier is the pure state machine behind the navigator. It is not
// safe for concurrent use; NavigatorService owns it on a single goroutine.
type ProximityNotifier struct {
	messages Messages
	state    domain.TripState
}

// NewProximityNotifier creates a notifier. A non-positive radius falls back to DefaultAlarmRadius.
func NewProximityNotifier(messages Messages, alarmRadius float64) *ProximityNotifier {
	if !validRadius(alarmRadius) {
		alarmRadius = DefaultAlarmRadius
	}
	return &ProximityNotifier{
		messages: messages,
		state:    domain.TripState{AlarmRadius: alarmRadius},
	}
}

// State returns a copy of the current state.
func (n *ProximityNotifier) State() domain.TripState {
	return n.state
}

// OnPosition records a new sample, applies the route-refresh rule and then the stage rule.
func (n *ProximityNotifier) OnPosition(pos domain.Position) []Effect {
	n.state.Position = &pos
	if n.state.Destination == nil {
		return nil
	}

	var effects []Effect
	if n.routeDue(pos.Location) {
		effects = append(effects, n.requestRoute(pos.Location))
	}
	return append(effects, n.evaluate()...)
}

// OnDestination replaces the live destination, dropping the old route and
// resetting stage and alarm.
func (n *ProximityNotifier) OnDestination(dest domain.Destination) []Effect {
	var effects []Effect
	if n.state.Alarm.Active {
		effects = append(effects, Effect{Kind: EffectStopAlarm})
	}

	n.state.Destination = &dest
	n.state.Route = nil
	n.state.LastRoutedFrom = nil
	n.state.Alarm = domain.AlarmState{}
	if n.state.Stage != domain.StageUnset {
		n.state.Stage = domain.StageUnset
		effects = append(effects, Effect{Kind: EffectStageChanged, Stage: domain.StageUnset})
	}

	if n.state.Position == nil {
		return effects
	}
	effects = append(effects, n.requestRoute(n.state.Position.Location))
	return append(effects, n.evaluate()...)
}

// OnRoute installs a route. It reports false and changes nothing when the
// route belongs to a destination that is no longer live, or answers a request
// that a newer refresh has superseded.
func (n *ProximityNotifier) OnRoute(route domain.Route) bool {
	if n.state.Destination == nil || route.DestinationID != n.state.Destination.ID {
		return false
	}
	if route.Seq != n.state.RouteSeq {
		return false
	}
	n.state.Route = &route
	return true
}

// OnRadius changes the alarm radius and re-evaluates the stage rule.
func (n *ProximityNotifier) OnRadius(radius float64) ([]Effect, error) {
	if !validRadius(radius) {
		return nil, domain.ErrInvalidRadius
	}
	n.state.AlarmRadius = radius
	return n.evaluate(), nil
}

// Stop silences the alarm and any in-flight speech. Armed flag and stage are kept.
func (n *ProximityNotifier) Stop() []Effect {
	n.state.Alarm.Active = false
	return []Effect{{Kind: EffectStopAlarm}, {Kind: EffectCancelSpeech}}
}

// Replay restarts the alarm from the beginning and repeats the near message.
// It leaves Armed alone, so a replay before the radius does not use up the near alert.
func (n *ProximityNotifier) Replay() []Effect {
	n.state.Alarm.Active = true
	return []Effect{
		{Kind: EffectStartAlarm},
		{Kind: EffectSpeak, Text: n.messages.near(n.state.AlarmRadius), Stage: domain.StageNear},
	}
}

// Reset stops the alarm and clears armed flag and stage so the next approach alarms again.
func (n *ProximityNotifier) Reset() []Effect {
	effects := n.Stop()
	n.state.Alarm.Armed = false
	if n.state.Stage != domain.StageUnset {
		n.state.Stage = domain.StageUnset
		effects = append(effects, Effect{Kind: EffectStageChanged, Stage: domain.StageUnset})
	}
	return append(effects,
		Effect{Kind: EffectSpeak, Text: n.messages.reset()},
		Effect{Kind: EffectAlert, Text: n.messages.ResetAlert},
	)
}

// DistanceToDestination returns meters to the destination, or false when
// position or destination is unknown.
func (n *ProximityNotifier) DistanceToDestination() (float64, bool) {
	if n.state.Position == nil || n.state.Destination == nil {
		return 0, false
	}
	return geospatial.Distance(n.state.Position.Location, n.state.Destination.Location), true
}

func (n *ProximityNotifier) routeDue(cur domain.GeoPoint) bool {
	if n.state.LastRoutedFrom == nil {
		return true
	}
	return geospatial.Distance(*n.state.LastRoutedFrom, cur) > RouteRefreshDistance
}

func (n *ProximityNotifier) requestRoute(from domain.GeoPoint) Effect {
	n.state.LastRoutedFrom = &from
	n.state.RouteSeq++
	return Effect{
		Kind:          EffectRequestRoute,
		DestinationID: n.state.Destination.ID,
		From:          from,
		To:            n.state.Destination.Location,
		Seq:           n.state.RouteSeq,
	}
}

// evaluate applies the first matching stage rule.
func (n *ProximityNotifier) evaluate() []Effect {
	d, ok := n.DistanceToDestination()
	if !ok {
		return nil
	}

	s := &n.state
	switch {
	case d > FarDistance && s.Stage != domain.StageFar:
		return n.enter(domain.StageFar, Effect{Kind: EffectSpeak, Text: n.messages.far(), Stage: domain.StageFar})

	case d > MidDistance && d <= FarDistance && s.Stage != domain.StageMid:
		return n.enter(domain.StageMid, Effect{Kind: EffectSpeak, Text: n.messages.mid(), Stage: domain.StageMid})

	case d <= s.AlarmRadius && !s.Alarm.Armed:
		s.Alarm.Armed = true
		s.Alarm.Active = true
		msg := n.messages.near(s.AlarmRadius)
		return n.enter(domain.StageNear,
			Effect{Kind: EffectStartAlarm},
			Effect{Kind: EffectSpeak, Text: msg, Stage: domain.StageNear},
			Effect{Kind: EffectAlert, Text: msg, Stage: domain.StageNear},
		)

	case d <= ArrivalDistance && s.Stage != domain.StageArrived:
		s.Alarm.Active = false
		return n.enter(domain.StageArrived,
			Effect{Kind: EffectStopAlarm},
			Effect{Kind: EffectSpeak, Text: n.messages.arrived(), Stage: domain.StageArrived},
		)
	}
	return nil
}

func (n *ProximityNotifier) enter(stage domain.Stage, effects ...Effect) []Effect {
	n.state.Stage = stage
	return append(effects, Effect{Kind: EffectStageChanged, Stage: stage})
}

func validRadius(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}
