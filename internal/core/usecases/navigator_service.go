package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/ports"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
	"github.com/samirrijal/destialarm/internal/pkg/metrics"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

const (
	radiusCacheKey = "alarm:radius"
	maxTrackPoints = 10_000
)

// ErrNavigatorStopped is returned by operations issued after Run has returned.
var ErrNavigatorStopped = errors.New("navigator stopped")

// NavigatorPorts groups the collaborators of a NavigatorService. Only
// Geocoder and Router are required; the rest may be nil.
type NavigatorPorts struct {
	Geocoder ports.Geocoder
	Router   ports.Router
	Speaker  ports.Speaker
	Alarm    ports.AlarmPlayer
	Events   ports.EventPublisher
	Alerts   ports.AlertPublisher
	Journal  ports.NotificationRepository
	Trips    ports.TripRepository
	Archive  ports.TripArchive
	Cache    ports.CacheService
}

// NavigatorConfig tunes a NavigatorService.
type NavigatorConfig struct {
	AlarmRadius float64
	Messages    Messages
	SpeechLang  string
	// StaleAfter marks the sensor unavailable when no sample arrived for this long. Zero disables it.
	StaleAfter time.Duration
}

type command struct {
	fn   func(ctx context.Context) error
	errc chan error
}

// NavigatorService owns the trip state. All state changes run on the Run
// goroutine; network calls run elsewhere and post their results back.
type NavigatorService struct {
	p   NavigatorPorts
	cfg NavigatorConfig

	notifier *ProximityNotifier
	inbox    chan command
	done     chan struct{}
	bg       sync.WaitGroup

	// loop-owned
	track      []domain.GeoPoint
	lastSample time.Time
	sensor     string

	status atomic.Pointer[domain.Status]
	route  atomic.Pointer[domain.Route]
}

// NewNavigatorService creates a NavigatorService. Call Run to start it.
func NewNavigatorService(p NavigatorPorts, cfg NavigatorConfig) *NavigatorService {
	if cfg.SpeechLang == "" {
		cfg.SpeechLang = "en-IN"
	}
	s := &NavigatorService{
		p:        p,
		cfg:      cfg,
		notifier: NewProximityNotifier(cfg.Messages, cfg.AlarmRadius),
		inbox:    make(chan command, 64),
		done:     make(chan struct{}),
		sensor:   domain.SensorWaiting,
	}
	s.status.Store(s.snapshot())
	return s
}

// Run processes navigator events until ctx is cancelled.
func (s *NavigatorService) Run(ctx context.Context) error {
	defer func() {
		close(s.done)
		s.bg.Wait()
	}()

	s.loadRadius(ctx)

	var stale <-chan time.Time
	if s.cfg.StaleAfter > 0 {
		interval := s.cfg.StaleAfter / 2
		if interval > time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		stale = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.inbox:
			err := cmd.fn(ctx)
			if cmd.errc != nil {
				cmd.errc <- err
			}
		case <-stale:
			s.checkSensor(ctx)
		}
	}
}

// Status returns the latest status snapshot.
func (s *NavigatorService) Status() domain.Status {
	return *s.status.Load()
}

// Route returns the live route, or nil when none has been computed.
func (s *NavigatorService) Route() *domain.Route {
	return s.route.Load()
}

// UpdatePosition feeds one sensor sample into the navigator.
func (s *NavigatorService) UpdatePosition(ctx context.Context, pos domain.Position) error {
	if !pos.Location.Valid() {
		return domain.ErrInvalidPosition
	}
	if pos.Time.IsZero() {
		pos.Time = time.Now()
	}
	return s.do(ctx, func(ctx context.Context) error {
		s.lastSample = time.Now()
		if s.sensor != domain.SensorOK {
			slog.Info("position feed active", "device", pos.DeviceID)
			s.sensor = domain.SensorOK
		}
		if s.notifier.State().Destination != nil && len(s.track) < maxTrackPoints {
			s.track = append(s.track, pos.Location)
		}
		s.apply(ctx, s.notifier.OnPosition(pos))
		return nil
	})
}

// HandlePosition adapts UpdatePosition to a feed handler.
func (s *NavigatorService) HandlePosition(source string) func(ctx context.Context, pos *domain.Position) error {
	return func(ctx context.Context, pos *domain.Position) error {
		ctx, span := otel.Tracer("destialarm/navigator").Start(ctx, telemetry.SpanPosition)
		defer span.End()
		span.SetAttributes(attribute.String("position.source", source), attribute.String("position.device", pos.DeviceID))

		metrics.PositionsReceived.WithLabelValues(source).Inc()
		return s.UpdatePosition(ctx, *pos)
	}
}

// SetDestination geocodes query and makes the result the live destination.
// On failure nothing changes.
func (s *NavigatorService) SetDestination(ctx context.Context, query string) (*domain.Destination, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	dest, err := s.p.Geocoder.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}
	dest.ID = uuid.NewString()
	dest.Query = query
	dest.SetAt = time.Now()

	d := *dest
	err = s.do(ctx, func(ctx context.Context) error {
		s.track = s.track[:0]
		s.route.Store(nil)
		effects := s.notifier.OnDestination(d)
		if pos := s.notifier.State().Position; pos != nil {
			s.track = append(s.track, pos.Location)
		}
		s.apply(ctx, effects)
		s.background(func(ctx context.Context) {
			if s.p.Trips == nil {
				return
			}
			trip := &domain.Trip{
				DestinationID: d.ID,
				Query:         d.Query,
				Name:          d.Name,
				Destination:   d.Location,
				StartedAt:     d.SetAt,
			}
			if err := s.p.Trips.Create(ctx, trip); err != nil {
				slog.Warn("record trip failed", "destination_id", d.ID, "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("destination set", "destination_id", d.ID, "query", query, "lat", d.Location.Lat, "lon", d.Location.Lon)
	return &d, nil
}

// SetAlarmRadius changes the alarm radius and persists it as a preference.
func (s *NavigatorService) SetAlarmRadius(ctx context.Context, radius float64) error {
	if !validRadius(radius) {
		return domain.ErrInvalidRadius
	}
	err := s.do(ctx, func(ctx context.Context) error {
		effects, err := s.notifier.OnRadius(radius)
		if err != nil {
			return err
		}
		s.apply(ctx, effects)
		return nil
	})
	if err != nil {
		return err
	}

	if s.p.Cache != nil {
		v := strconv.FormatFloat(radius, 'f', -1, 64)
		if err := s.p.Cache.Set(ctx, radiusCacheKey, []byte(v), 0); err != nil {
			slog.Warn("persist alarm radius failed", "error", err)
		}
	}
	return nil
}

// StopAlarm silences the alarm without re-arming it.
func (s *NavigatorService) StopAlarm(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.apply(ctx, s.notifier.Stop())
		return nil
	})
}

// ReplayAlarm restarts the alarm and repeats the near announcement.
func (s *NavigatorService) ReplayAlarm(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.apply(ctx, s.notifier.Replay())
		return nil
	})
}

// ResetAlarm clears stage and armed flag for the next trip.
func (s *NavigatorService) ResetAlarm(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.apply(ctx, s.notifier.Reset())
		return nil
	})
}

// ReportSensorFailure marks the position feed unavailable.
func (s *NavigatorService) ReportSensorFailure(ctx context.Context, cause error) error {
	return s.do(ctx, func(ctx context.Context) error {
		slog.Error("position feed unavailable", "error", fmt.Errorf("%w: %v", domain.ErrSensorUnavailable, cause))
		s.sensor = domain.SensorUnavailable
		s.publishStatus(ctx)
		return nil
	})
}

// do runs fn on the loop goroutine and waits for it.
func (s *NavigatorService) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case s.inbox <- command{fn: fn, errc: errc}:
	case <-s.done:
		return ErrNavigatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrNavigatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop without waiting.
func (s *NavigatorService) post(fn func(ctx context.Context) error) {
	select {
	case s.inbox <- command{fn: fn}:
	case <-s.done:
	}
}

// background runs fn off the loop with a context that outlives the request.
func (s *NavigatorService) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func (s *NavigatorService) apply(ctx context.Context, effects []Effect) {
	dest := s.notifier.State().Destination
	destID := ""
	if dest != nil {
		destID = dest.ID
	}

	for _, e := range effects {
		switch e.Kind {
		case EffectSpeak:
			s.speak(ctx, e.Text)
			s.record(destID, domain.NotificationSpeech, e)
		case EffectCancelSpeech:
			if s.p.Speaker != nil {
				if err := s.p.Speaker.Cancel(ctx); err != nil {
					slog.Warn("cancel speech failed", "error", err)
				}
			}
		case EffectStartAlarm:
			s.startAlarm(ctx)
		case EffectStopAlarm:
			s.stopAudio(ctx)
		case EffectAlert:
			s.record(destID, domain.NotificationAlert, e)
		case EffectRequestRoute:
			s.requestRoute(e)
		case EffectStageChanged:
			s.stageChanged(e.Stage)
		}
	}
	s.publishStatus(ctx)
}

// speak cancels any in-flight utterance first so the newest one wins.
func (s *NavigatorService) speak(ctx context.Context, text string) {
	if s.p.Speaker == nil {
		slog.Warn("speech skipped", "error", domain.ErrSpeechUnavailable, "text", text)
		return
	}
	if err := s.p.Speaker.Cancel(ctx); err != nil {
		slog.Warn("cancel speech failed", "error", err)
	}
	if err := s.p.Speaker.Speak(ctx, domain.Utterance{Text: text, Lang: s.cfg.SpeechLang}); err != nil {
		metrics.DeviceFailures.WithLabelValues("speech").Inc()
		slog.Warn("speech unavailable", "error", err, "text", text)
	}
}

func (s *NavigatorService) startAlarm(ctx context.Context) {
	if s.p.Alarm == nil {
		return
	}
	err := s.p.Alarm.Rewind(ctx)
	if err == nil {
		err = s.p.Alarm.Play(ctx)
	}
	if err != nil {
		metrics.DeviceFailures.WithLabelValues("audio").Inc()
		slog.Error("alarm playback failed", "error", err)
	}
}

func (s *NavigatorService) stopAudio(ctx context.Context) {
	if s.p.Alarm == nil {
		return
	}
	err := s.p.Alarm.Pause(ctx)
	if err == nil {
		err = s.p.Alarm.Rewind(ctx)
	}
	if err != nil {
		metrics.DeviceFailures.WithLabelValues("audio").Inc()
		slog.Error("alarm stop failed", "error", err)
	}
}

func (s *NavigatorService) record(destID string, kind domain.NotificationKind, e Effect) {
	n := &domain.Notification{
		DestinationID: destID,
		Kind:          kind,
		Stage:         e.Stage,
		Message:       e.Text,
		CreatedAt:     time.Now(),
	}
	s.background(func(ctx context.Context) {
		if s.p.Events != nil {
			if err := s.p.Events.PublishNotification(ctx, n); err != nil {
				slog.Warn("publish notification failed", "error", err)
			}
		}
		if kind == domain.NotificationAlert && s.p.Alerts != nil {
			if err := s.p.Alerts.PublishAlert(ctx, n); err != nil {
				slog.Warn("alert fan-out failed", "error", err)
			}
		}
		if s.p.Journal != nil {
			if err := s.p.Journal.Insert(ctx, n); err != nil {
				slog.Warn("journal notification failed", "error", err)
			}
		}
	})
}

func (s *NavigatorService) requestRoute(e Effect) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		route, err := s.p.Router.Route(ctx, e.From, e.To)
		if err != nil {
			metrics.RouteRequests.WithLabelValues("failed").Inc()
			slog.Warn("route request failed", "destination_id", e.DestinationID, "error", err)
			return
		}
		route.DestinationID = e.DestinationID
		route.From = e.From
		route.Seq = e.Seq
		if route.ComputedAt.IsZero() {
			route.ComputedAt = time.Now()
		}

		s.post(func(ctx context.Context) error {
			if !s.notifier.OnRoute(*route) {
				metrics.RouteRequests.WithLabelValues("stale").Inc()
				slog.Debug("discarding stale route", "destination_id", e.DestinationID)
				return nil
			}
			metrics.RouteRequests.WithLabelValues("accepted").Inc()
			s.route.Store(route)
			s.publishStatus(ctx)
			return nil
		})
	}()
}

func (s *NavigatorService) stageChanged(stage domain.Stage) {
	label := string(stage)
	if stage == domain.StageUnset {
		label = "unset"
	}
	metrics.StageTransitions.WithLabelValues(label).Inc()
	switch stage {
	case domain.StageNear:
		metrics.AlarmsTriggered.Inc()
	case domain.StageArrived:
		s.finishTrip()
	}
}

// finishTrip archives the trip geometry and marks it arrived.
func (s *NavigatorService) finishTrip() {
	st := s.notifier.State()
	if st.Destination == nil {
		return
	}
	dest := *st.Destination
	route := st.Route
	track := append([]domain.GeoPoint(nil), s.track...)
	at := time.Now()

	s.background(func(ctx context.Context) {
		trip := &domain.Trip{
			DestinationID: dest.ID,
			Query:         dest.Query,
			Name:          dest.Name,
			Destination:   dest.Location,
			StartedAt:     dest.SetAt,
			ArrivedAt:     &at,
		}
		if route != nil {
			km := route.DistanceKm
			trip.DistanceKm = &km
		}

		if s.p.Archive != nil {
			archiveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			key, err := s.p.Archive.Archive(archiveCtx, trip, route, track)
			cancel()
			if err != nil {
				slog.Warn("archive trip failed", "destination_id", dest.ID, "error", err)
			} else {
				trip.ArchiveKey = key
			}
		}
		if s.p.Trips != nil {
			if err := s.p.Trips.MarkArrived(ctx, dest.ID, at, trip.DistanceKm, trip.ArchiveKey); err != nil {
				slog.Warn("mark trip arrived failed", "destination_id", dest.ID, "error", err)
			}
		}
	})
}

func (s *NavigatorService) checkSensor(ctx context.Context) {
	if s.sensor != domain.SensorOK || s.lastSample.IsZero() {
		return
	}
	if time.Since(s.lastSample) > s.cfg.StaleAfter {
		slog.Warn("position feed stale", "error", domain.ErrSensorUnavailable, "last_sample", s.lastSample)
		s.sensor = domain.SensorUnavailable
		s.publishStatus(ctx)
	}
}

func (s *NavigatorService) loadRadius(ctx context.Context) {
	if s.p.Cache == nil {
		return
	}
	data, err := s.p.Cache.Get(ctx, radiusCacheKey)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("alarm_radius").Inc()
		return
	}
	metrics.CacheHits.WithLabelValues("alarm_radius").Inc()
	r, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		slog.Warn("ignoring stored alarm radius", "value", string(data), "error", err)
		return
	}
	if _, err := s.notifier.OnRadius(r); err != nil {
		slog.Warn("ignoring stored alarm radius", "value", r, "error", err)
		return
	}
	slog.Info("alarm radius restored", "radius_meters", r)
	s.status.Store(s.snapshot())
}

func (s *NavigatorService) publishStatus(ctx context.Context) {
	st := s.snapshot()
	s.status.Store(st)
	if s.p.Events == nil {
		return
	}
	if err := s.p.Events.PublishStatus(ctx, st); err != nil {
		slog.Debug("publish status failed", "error", err)
	}
}

func (s *NavigatorService) snapshot() *domain.Status {
	st := s.notifier.State()
	out := &domain.Status{
		Position:    st.Position,
		Speed:       "N/A",
		Destination: st.Destination,
		AlarmRadius: st.AlarmRadius,
		Stage:       st.Stage,
		Alarm:       st.Alarm,
		Sensor:      s.sensor,
		UpdatedAt:   time.Now(),
	}
	if st.Position != nil {
		out.Speed = st.Position.SpeedKmh()
	}
	if st.Route != nil {
		km := st.Route.DistanceKm
		out.RouteDistanceKm = &km
	}
	if d, ok := s.notifier.DistanceToDestination(); ok {
		out.DistanceMeters = &d
	}
	if st.Destination != nil {
		zone := geospatial.Zone(st.Destination.Location, st.AlarmRadius)
		out.AlarmZone = &zone
	}
	return out
}
