package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/usecases"
)

// --- Mocks ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, query string) (*domain.Destination, error)
	calls     int
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string) (*domain.Destination, error) {
	m.calls++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query)
	}
	return &domain.Destination{Name: query, Location: origin}, nil
}

type mockRouter struct {
	mu      sync.Mutex
	routeFn func(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error)
	calls   int
}

func (m *mockRouter) Route(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error) {
	m.mu.Lock()
	m.calls++
	fn := m.routeFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, from, to)
	}
	return &domain.Route{DistanceKm: 3.1}, nil
}

func (m *mockRouter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSpeaker struct {
	mu       sync.Mutex
	speakFn  func(ctx context.Context, u domain.Utterance) error
	cancelFn func(ctx context.Context) error
	spoken   []domain.Utterance
	cancels  int
}

func (m *mockSpeaker) Speak(ctx context.Context, u domain.Utterance) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	m.mu.Unlock()
	if m.speakFn != nil {
		return m.speakFn(ctx, u)
	}
	return nil
}

func (m *mockSpeaker) Cancel(ctx context.Context) error {
	m.mu.Lock()
	m.cancels++
	m.mu.Unlock()
	if m.cancelFn != nil {
		return m.cancelFn(ctx)
	}
	return nil
}

func (m *mockSpeaker) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, u := range m.spoken {
		out = append(out, u.Text)
	}
	return out
}

type mockAlarm struct {
	mu                    sync.Mutex
	plays, pauses, rewinds int
}

func (m *mockAlarm) Play(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	return nil
}

func (m *mockAlarm) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

func (m *mockAlarm) Rewind(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewinds++
	return nil
}

func (m *mockAlarm) counts() (plays, pauses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays, m.pauses
}

type mockAlerts struct {
	mu     sync.Mutex
	alerts []domain.Notification
}

func (m *mockAlerts) PublishAlert(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *n)
	return nil
}

func (m *mockAlerts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

type mockTrips struct {
	mu       sync.Mutex
	created  []domain.Trip
	arrived  []string
	archives []string
}

func (m *mockTrips) Create(ctx context.Context, trip *domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *trip)
	return nil
}

func (m *mockTrips) MarkArrived(ctx context.Context, destinationID string, at time.Time, km *float64, archiveKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arrived = append(m.arrived, destinationID)
	m.archives = append(m.archives, archiveKey)
	return nil
}

func (m *mockTrips) ListRecent(ctx context.Context, limit int) ([]domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, nil
}

type mockArchive struct {
	archiveFn func(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error)
}

func (m *mockArchive) Archive(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error) {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, trip, route, track)
	}
	return "trips/" + trip.DestinationID + ".geojson", nil
}

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Helpers ---

type fixture struct {
	geocoder *mockGeocoder
	router   *mockRouter
	speaker  *mockSpeaker
	alarm    *mockAlarm
	alerts   *mockAlerts
	trips    *mockTrips
	cache    *mockCache
}

func newFixture() *fixture {
	return &fixture{
		geocoder: &mockGeocoder{},
		router:   &mockRouter{},
		speaker:  &mockSpeaker{},
		alarm:    &mockAlarm{},
		alerts:   &mockAlerts{},
		trips:    &mockTrips{},
		cache:    newMockCache(),
	}
}

func (f *fixture) ports() usecases.NavigatorPorts {
	return usecases.NavigatorPorts{
		Geocoder: f.geocoder,
		Router:   f.router,
		Speaker:  f.speaker,
		Alarm:    f.alarm,
		Alerts:   f.alerts,
		Trips:    f.trips,
		Archive:  &mockArchive{},
		Cache:    f.cache,
	}
}

func startNavigator(t *testing.T, p usecases.NavigatorPorts, cfg usecases.NavigatorConfig) *usecases.NavigatorService {
	t.Helper()
	if cfg.Messages.RiderName == "" {
		cfg.Messages = usecases.DefaultMessages("Dshine")
	}
	svc := usecases.NewNavigatorService(p, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return svc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Tests ---

func TestNavigator_SetDestination_EmptyQuery(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})

	_, err := svc.SetDestination(context.Background(), "   ")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if f.geocoder.calls != 0 {
		t.Errorf("geocoder must not be called for an empty query")
	}
}

func TestNavigator_SetDestination_NotFoundLeavesState(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	if _, err := svc.SetDestination(ctx, "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := svc.Status().Destination

	f.geocoder.geocodeFn = func(ctx context.Context, q string) (*domain.Destination, error) {
		return nil, domain.ErrGeocodeNotFound
	}
	_, err := svc.SetDestination(ctx, "nowhere at all")
	if !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Fatalf("expected ErrGeocodeNotFound, got %v", err)
	}
	after := svc.Status().Destination
	if after == nil || after.ID != before.ID {
		t.Errorf("destination changed after failed geocode: %+v", after)
	}
}

func TestNavigator_ApproachFlow(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	dest, err := svc.SetDestination(ctx, "home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.ID == "" {
		t.Fatal("expected destination ID to be assigned")
	}

	if err := svc.UpdatePosition(ctx, north(3000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "initial route", func() bool { return svc.Status().RouteDistanceKm != nil })
	if got := svc.Route().DestinationID; got != dest.ID {
		t.Errorf("route tagged with %q, want %q", got, dest.ID)
	}
	if km := *svc.Status().RouteDistanceKm; km != 3.1 {
		t.Errorf("expected route distance 3.1 km in status, got %v", km)
	}

	for _, d := range []float64{1500, 400} {
		if err := svc.UpdatePosition(ctx, north(d)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	st := svc.Status()
	if st.Stage != domain.StageNear || !st.Alarm.Active {
		t.Fatalf("expected near with active alarm, got %+v", st)
	}
	if plays, _ := f.alarm.counts(); plays != 1 {
		t.Errorf("expected one alarm play, got %d", plays)
	}
	texts := f.speaker.texts()
	if len(texts) != 3 {
		t.Fatalf("expected far, mid and near announcements, got %v", texts)
	}
	waitFor(t, "near alert fan-out", func() bool { return f.alerts.len() == 1 })

	waitFor(t, "trip record", func() bool {
		f.trips.mu.Lock()
		defer f.trips.mu.Unlock()
		return len(f.trips.created) == 1 && f.trips.created[0].DestinationID == dest.ID
	})
}

func TestNavigator_ArrivalArchivesTrip(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	dest, _ := svc.SetDestination(ctx, "home")
	for _, d := range []float64{400, 100} {
		if err := svc.UpdatePosition(ctx, north(d)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if svc.Status().Stage != domain.StageArrived {
		t.Fatalf("expected arrived, got %q", svc.Status().Stage)
	}

	waitFor(t, "trip marked arrived", func() bool {
		f.trips.mu.Lock()
		defer f.trips.mu.Unlock()
		return len(f.trips.arrived) == 1
	})
	f.trips.mu.Lock()
	defer f.trips.mu.Unlock()
	if f.trips.arrived[0] != dest.ID {
		t.Errorf("expected %s arrived, got %s", dest.ID, f.trips.arrived[0])
	}
	if f.trips.archives[0] != "trips/"+dest.ID+".geojson" {
		t.Errorf("unexpected archive key %q", f.trips.archives[0])
	}
}

func TestNavigator_StaleRouteDiscarded(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	releaseRoute := sync.OnceFunc(func() { close(release) })
	second := domain.GeoPoint{Lat: 0.05, Lon: 0.05}
	f.geocoder.geocodeFn = func(ctx context.Context, q string) (*domain.Destination, error) {
		if q == "second" {
			return &domain.Destination{Location: second}, nil
		}
		return &domain.Destination{Location: origin}, nil
	}
	f.router.routeFn = func(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error) {
		if to == origin {
			<-release
			return &domain.Route{DistanceKm: 1}, nil
		}
		return &domain.Route{DistanceKm: 2}, nil
	}
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	t.Cleanup(releaseRoute)
	ctx := context.Background()

	if err := svc.UpdatePosition(ctx, north(3000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SetDestination(ctx, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dest2, err := svc.SetDestination(ctx, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "second route", func() bool { return svc.Route() != nil })

	releaseRoute()
	waitFor(t, "both route requests", func() bool { return f.router.count() == 2 })
	time.Sleep(50 * time.Millisecond)

	route := svc.Route()
	if route.DestinationID != dest2.ID || route.DistanceKm != 2 {
		t.Errorf("late route overwrote live one: %+v", route)
	}
}

func TestNavigator_OutOfOrderRouteDiscarded(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	releaseRoute := sync.OnceFunc(func() { close(release) })
	older := north(5000).Location
	f.router.routeFn = func(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error) {
		if from == older {
			<-release
			return &domain.Route{DistanceKm: 5}, nil
		}
		return &domain.Route{DistanceKm: 4}, nil
	}
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	t.Cleanup(releaseRoute)
	ctx := context.Background()

	if _, err := svc.SetDestination(ctx, "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.UpdatePosition(ctx, north(5000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.UpdatePosition(ctx, north(4000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "newer route", func() bool { return svc.Route() != nil })

	releaseRoute()
	waitFor(t, "both route requests", func() bool { return f.router.count() == 2 })
	time.Sleep(50 * time.Millisecond)

	route := svc.Route()
	if route.DistanceKm != 4 || route.From != north(4000).Location {
		t.Errorf("older refresh overwrote newer route: %+v", route)
	}
}

func TestNavigator_AlarmRadius(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	for _, r := range []float64{0, -10} {
		if err := svc.SetAlarmRadius(ctx, r); !errors.Is(err, domain.ErrInvalidRadius) {
			t.Errorf("radius %v: expected ErrInvalidRadius, got %v", r, err)
		}
	}

	if err := svc.SetAlarmRadius(ctx, 750); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.Status().AlarmRadius; got != 750 {
		t.Errorf("expected radius 750 in status, got %f", got)
	}
	if v, _ := f.cache.Get(ctx, "alarm:radius"); string(v) != "750" {
		t.Errorf("expected persisted radius 750, got %q", v)
	}
}

func TestNavigator_RadiusRestoredFromCache(t *testing.T) {
	f := newFixture()
	_ = f.cache.Set(context.Background(), "alarm:radius", []byte("320"), 0)
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})

	waitFor(t, "restored radius", func() bool { return svc.Status().AlarmRadius == 320 })
}

func TestNavigator_SpeechUnavailableIsNotFatal(t *testing.T) {
	f := newFixture()
	f.speaker.speakFn = func(ctx context.Context, u domain.Utterance) error {
		return domain.ErrSpeechUnavailable
	}
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	_, _ = svc.SetDestination(ctx, "home")
	if err := svc.UpdatePosition(ctx, north(400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Status().Stage != domain.StageNear {
		t.Errorf("expected notification flow to continue, got stage %q", svc.Status().Stage)
	}
}

func TestNavigator_CancelFailureStillSpeaks(t *testing.T) {
	f := newFixture()
	f.speaker.cancelFn = func(ctx context.Context) error {
		return domain.ErrSpeechUnavailable
	}
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{})
	ctx := context.Background()

	_, _ = svc.SetDestination(ctx, "home")
	if err := svc.UpdatePosition(ctx, north(3000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.speaker.texts()) == 0 {
		t.Fatal("expected far message to be spoken after a failed cancel")
	}
	f.speaker.mu.Lock()
	cancels := f.speaker.cancels
	f.speaker.mu.Unlock()
	if cancels == 0 {
		t.Error("expected speech to be cancelled before speaking")
	}
}

func TestNavigator_ManualControls(t *testing.T) {
	f := newFixture()
	svc := startNavigator(t, f.ports(), usecases.NavigatorConfig{SpeechLang: "en-GB"})
	ctx := context.Background()

	_, _ = svc.SetDestination(ctx, "home")
	_ = svc.UpdatePosition(ctx, north(400))

	if err := svc.StopAlarm(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := svc.Status()
	if st.Alarm.Active || !st.Alarm.Armed {
		t.Errorf("unexpected alarm after stop: %+v", st.Alarm)
	}

	if err := svc.ReplayAlarm(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.Status().Alarm.Active {
		t.Error("expected replay to reactivate alarm")
	}

	if err := svc.ResetAlarm(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st = svc.Status()
	if st.Stage != domain.StageUnset || st.Alarm.Armed {
		t.Errorf("unexpected state after reset: %+v", st)
	}

	texts := f.speaker.texts()
	if last := texts[len(texts)-1]; last != "Alarm reset for your next trip, Dshine!" {
		t.Errorf("expected reset confirmation, got %q", last)
	}
	f.speaker.mu.Lock()
	lang := f.speaker.spoken[0].Lang
	f.speaker.mu.Unlock()
	if lang != "en-GB" {
		t.Errorf("expected configured speech language, got %q", lang)
	}
	if plays, pauses := f.alarm.counts(); plays != 2 || pauses != 2 {
		t.Errorf("expected 2 plays and 2 pauses, got %d/%d", plays, pauses)
	}
}

func TestNavigator_InvalidPosition(t *testing.T) {
	svc := startNavigator(t, newFixture().ports(), usecases.NavigatorConfig{})
	err := svc.UpdatePosition(context.Background(), domain.Position{Location: domain.GeoPoint{Lat: 91}})
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestNavigator_SensorStale(t *testing.T) {
	svc := startNavigator(t, newFixture().ports(), usecases.NavigatorConfig{StaleAfter: 20 * time.Millisecond})
	if got := svc.Status().Sensor; got != domain.SensorWaiting {
		t.Fatalf("expected waiting sensor, got %q", got)
	}

	_ = svc.UpdatePosition(context.Background(), north(100))
	if got := svc.Status().Sensor; got != domain.SensorOK {
		t.Fatalf("expected ok sensor, got %q", got)
	}
	waitFor(t, "stale sensor", func() bool { return svc.Status().Sensor == domain.SensorUnavailable })

	_ = svc.UpdatePosition(context.Background(), north(90))
	if got := svc.Status().Sensor; got != domain.SensorOK {
		t.Errorf("expected fresh sample to clear stale flag, got %q", got)
	}
}

func TestNavigator_StoppedRejectsOperations(t *testing.T) {
	svc := usecases.NewNavigatorService(newFixture().ports(), usecases.NavigatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Run(ctx)

	if err := svc.StopAlarm(context.Background()); !errors.Is(err, usecases.ErrNavigatorStopped) {
		t.Fatalf("expected ErrNavigatorStopped, got %v", err)
	}
}
