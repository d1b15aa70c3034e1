package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pitwall/core/apperr"
	"pitwall/core/identity"
	"pitwall/core/registry"
	"pitwall/db"
	"pitwall/model"
	"pitwall/repository"
	"pitwall/upstream"

	"gorm.io/gorm"
)

func dur(s float64) *time.Duration {
	d := time.Duration(s * float64(time.Second))
	return &d
}

type fakeSource struct {
	mu       sync.Mutex
	calls    map[string]int
	lapsErr  error
	laps     []upstream.Lap
	drivers  []upstream.Driver
	samples  []upstream.TelemetrySample
	messages []upstream.RaceControlMessage
	weather  []upstream.WeatherSample
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[string]int),
		drivers: []upstream.Driver{
			{RacingNumber: "1", Abbreviation: "VER", FullName: "Max VERSTAPPEN", TeamName: "Red Bull Racing"},
			{RacingNumber: "44", Abbreviation: "HAM", FullName: "Lewis HAMILTON", TeamName: "Mercedes"},
		},
		laps: []upstream.Lap{
			{DriverNumber: "1", Driver: "VER", LapNumber: 1, LapTime: dur(80.5), Sector1Time: dur(25.1), PersonalBest: true},
			{DriverNumber: "44", Driver: "HAM", LapNumber: 1, LapTime: dur(81.25)},
			{DriverNumber: "44", Driver: "HAM", LapNumber: 2, PitInTime: dur(150)},
			{DriverNumber: "44", Driver: "HAM", LapNumber: 3, PitOutTime: dur(172.5)},
		},
		samples: []upstream.TelemetrySample{
			{SessionTime: 100 * time.Second, Speed: 280, Gear: 7, Compound: "SOFT"},
			{SessionTime: 100*time.Second + 250*time.Millisecond, Speed: 282, Gear: 7, Compound: "SOFT"},
		},
		messages: []upstream.RaceControlMessage{
			{Time: time.Date(2023, 5, 28, 13, 3, 0, 0, time.UTC), Category: "Flag", Flag: "GREEN", Message: "GREEN LIGHT"},
		},
		weather: []upstream.WeatherSample{{Time: 90 * time.Second, Rainfall: 0}, {Time: 150 * time.Second, Rainfall: 1}},
	}
}

func (f *fakeSource) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) Schedule(ctx context.Context, year int) ([]upstream.ScheduleEvent, error) {
	f.hit("schedule")
	return []upstream.ScheduleEvent{{Round: 6, EventName: "Monaco Grand Prix"}}, nil
}

func (f *fakeSource) FindSession(ctx context.Context, year int, event, sessionType string) (upstream.SessionRef, error) {
	if event != "Monaco Grand Prix" || sessionType != "Race" {
		return upstream.SessionRef{}, upstream.ErrNotFound
	}
	return upstream.SessionRef{Year: year, EventName: event, SessionName: sessionType,
		Date: time.Date(2023, 5, 28, 13, 0, 0, 0, time.UTC), Path: "2023/monaco/race/"}, nil
}

func (f *fakeSource) SessionInfo(ctx context.Context, ref upstream.SessionRef) (upstream.SessionInfo, error) {
	return upstream.SessionInfo{CircuitName: "Monte Carlo", Location: "Monaco", MeetingName: ref.EventName, TotalLaps: 78}, nil
}

func (f *fakeSource) Drivers(ctx context.Context, ref upstream.SessionRef) ([]upstream.Driver, error) {
	f.hit("drivers")
	return f.drivers, nil
}

func (f *fakeSource) Laps(ctx context.Context, ref upstream.SessionRef) ([]upstream.Lap, error) {
	f.hit("laps")
	if f.lapsErr != nil {
		return nil, f.lapsErr
	}
	return f.laps, nil
}

func (f *fakeSource) Telemetry(ctx context.Context, ref upstream.SessionRef, driverNumber string, lap int) ([]upstream.TelemetrySample, error) {
	f.hit("telemetry")
	if driverNumber != "44" || lap != 3 {
		return nil, upstream.ErrNotFound
	}
	return f.samples, nil
}

func (f *fakeSource) RaceControl(ctx context.Context, ref upstream.SessionRef) ([]upstream.RaceControlMessage, error) {
	f.hit("messages")
	return f.messages, nil
}

func (f *fakeSource) Weather(ctx context.Context, ref upstream.SessionRef) ([]upstream.WeatherSample, error) {
	f.hit("weather")
	return f.weather, nil
}

func newTestService(t *testing.T) (*Service, *fakeSource, *gorm.DB) {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "sync.db"), 5*time.Second, "error")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	src := newFakeSource()
	retry := db.DefaultRetryConfig()
	reg := registry.NewRegistry(repository.NewGormSessionRepository(gdb, retry), src, identity.NewResolver(src))
	return NewService(reg, src, repository.NewGormCaches(gdb, retry)), src, gdb
}

var monaco = Query{Year: 2023, GP: "monaco", SessionType: "r"}

func TestLapsCacheAside(t *testing.T) {
	svc, src, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Laps(ctx, monaco)
	if err != nil {
		t.Fatalf("Laps: %v", err)
	}
	second, err := svc.Laps(ctx, Query{Year: 2023, GP: "Monaco Grand Prix", SessionType: "Race"})
	if err != nil {
		t.Fatalf("Laps again: %v", err)
	}
	if got := src.count("laps"); got != 1 {
		t.Errorf("upstream laps fetched %d times, want 1", got)
	}
	if len(first) != 4 || len(second) != 4 {
		t.Fatalf("rows = %d / %d, want 4", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.DriverCode != b.DriverCode || a.LapNumber != b.LapNumber || !sameFloat(a.LapTime, b.LapTime) {
			t.Errorf("row %d differs: %+v vs %+v", i, a, b)
		}
	}
	if first[0].LapTime == nil || *first[0].LapTime != 80.5 || !first[0].IsPersonalBest {
		t.Errorf("lap 0 = %+v", first[0])
	}
	if first[2].LapTime != nil {
		t.Errorf("missing lap time should stay nil, got %v", *first[2].LapTime)
	}
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestEntityCachesAreIdempotent(t *testing.T) {
	svc, src, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		drivers, err := svc.Drivers(ctx, monaco)
		if err != nil || len(drivers) != 2 || drivers[1].DriverName != "Lewis HAMILTON" || drivers[1].Abbreviation != "HAM" {
			t.Fatalf("Drivers = %+v, %v", drivers, err)
		}
		msgs, err := svc.Messages(ctx, monaco)
		if err != nil || len(msgs) != 1 || msgs[0].Time != "2023-05-28T13:03:00" {
			t.Fatalf("Messages = %+v, %v", msgs, err)
		}
		weather, err := svc.Weather(ctx, monaco)
		if err != nil || len(weather) != 2 || *weather[1].Time != 150 || weather[1].Rainfall != 1 {
			t.Fatalf("Weather = %+v, %v", weather, err)
		}
	}
	for _, name := range []string{"drivers", "messages", "weather"} {
		if got := src.count(name); got != 1 {
			t.Errorf("%s fetched %d times, want 1", name, got)
		}
	}
}

func TestPitStops(t *testing.T) {
	svc, _, _ := newTestService(t)
	stops, err := svc.PitStops(context.Background(), monaco)
	if err != nil {
		t.Fatalf("PitStops: %v", err)
	}
	if len(stops) != 1 {
		t.Fatalf("stops = %+v", stops)
	}
	s := stops[0]
	if s.Driver != "HAM" || s.LapNumber != 3 || s.Duration == nil || *s.Duration != 22.5 || *s.PitInTime != 150 {
		t.Errorf("stop = %+v", s)
	}
}

func TestDerivePitStops(t *testing.T) {
	laps := []upstream.Lap{
		{Driver: "HAM", LapNumber: 11, PitOutTime: dur(1000)},
		{Driver: "VER", LapNumber: 1, PitOutTime: dur(5)},
		{Driver: "HAM", LapNumber: 10, PitInTime: dur(978.4)},
		{Driver: "HAM", LapNumber: 30, PitOutTime: dur(3000)},
	}
	stops := DerivePitStops(laps)
	if len(stops) != 3 {
		t.Fatalf("stops = %d, want 3", len(stops))
	}

	lap11 := stops[0]
	if lap11.LapNumber != 11 || lap11.Duration == nil {
		t.Fatalf("lap 11 = %+v", lap11)
	}
	if d := *lap11.Duration; d < 21.59 || d > 21.61 {
		t.Errorf("lap 11 duration = %v, want 21.6", d)
	}
	if lap30 := stops[1]; lap30.LapNumber != 30 || lap30.Duration != nil || lap30.PitInTime != nil {
		t.Errorf("lap 30 should have no duration: %+v", lap30)
	}
	if ver := stops[2]; ver.Driver != "VER" || ver.Duration != nil || ver.PitOutTime == nil {
		t.Errorf("VER out-lap = %+v", ver)
	}
}

func TestDriverLaps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	byNumber, err := svc.DriverLaps(ctx, monaco, "44")
	if err != nil || len(byNumber) != 3 {
		t.Fatalf("by number = %d, %v", len(byNumber), err)
	}
	byCode, err := svc.DriverLaps(ctx, monaco, "ham")
	if err != nil || len(byCode) != 3 {
		t.Fatalf("by abbreviation = %d, %v", len(byCode), err)
	}
	if _, err := svc.DriverLaps(ctx, monaco, "99"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("unknown driver err = %v", err)
	}
}

func TestTelemetry(t *testing.T) {
	svc, src, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		samples, err := svc.Telemetry(ctx, monaco, "HAM", 3)
		if err != nil {
			t.Fatalf("Telemetry: %v", err)
		}
		if len(samples) != 2 || samples[0].SessionTimeMs != 100000 || samples[1].SessionTimeMs != 100250 || samples[0].Compound != "SOFT" {
			t.Fatalf("samples = %+v", samples)
		}
	}
	if got := src.count("telemetry"); got != 1 {
		t.Errorf("telemetry fetched %d times, want 1", got)
	}

	if _, err := svc.Telemetry(ctx, monaco, "44", 7); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("unknown lap err = %v", err)
	}
	before := src.count("telemetry")
	if _, err := svc.Telemetry(ctx, monaco, "63", 1); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("unknown driver err = %v", err)
	}
	if src.count("telemetry") != before {
		t.Error("unknown driver should not reach the telemetry feed")
	}
}

func TestTransientErrorIsNotCached(t *testing.T) {
	svc, src, _ := newTestService(t)
	ctx := context.Background()

	src.lapsErr = errors.New("connection reset")
	_, err := svc.Laps(ctx, monaco)
	if !apperr.Is(err, apperr.Upstream) {
		t.Fatalf("err = %v, want Upstream", err)
	}

	src.lapsErr = nil
	laps, err := svc.Laps(ctx, monaco)
	if err != nil || len(laps) != 4 {
		t.Fatalf("retry = %d, %v", len(laps), err)
	}
	if got := src.count("laps"); got != 2 {
		t.Errorf("laps fetched %d times, want 2", got)
	}
}

func TestRowsWithoutMarkerAreRefetched(t *testing.T) {
	svc, src, gdb := newTestService(t)
	ctx := context.Background()

	info, err := svc.Info(ctx, monaco)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	// 模拟中断的写入：有行但没有完成标记
	stale := model.Lap{SessionKey: info.SessionKey, Driver: "XXX", DriverCode: "99", LapNumber: 1}
	if err := gdb.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	laps, err := svc.Laps(ctx, monaco)
	if err != nil {
		t.Fatalf("Laps: %v", err)
	}
	if len(laps) != 4 || src.count("laps") != 1 {
		t.Fatalf("laps = %d, fetches = %d", len(laps), src.count("laps"))
	}
	for _, l := range laps {
		if l.DriverCode == "99" {
			t.Error("stale row survived the refill")
		}
	}
}

func TestSessionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Laps(context.Background(), Query{Year: 2023, GP: "monaco", SessionType: "fp1"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

// memRepo is an in-memory EntityRepository for engine tests.
type memRepo struct {
	mu     sync.Mutex
	rows   map[string][]int
	synced map[string]bool
}

func (m *memRepo) Entity() string { return "numbers" }

func (m *memRepo) Synced(ctx context.Context, key uint, scope repository.Scope) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.synced[scope.Key()], nil
}

func (m *memRepo) Find(ctx context.Context, key uint, scope repository.Scope) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[scope.Key()], nil
}

func (m *memRepo) Replace(ctx context.Context, key uint, scope repository.Scope, rows []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[scope.Key()] = rows
	m.synced[scope.Key()] = true
	return nil
}

func TestSyncCoalescesConcurrentFills(t *testing.T) {
	repo := &memRepo{rows: make(map[string][]int), synced: make(map[string]bool)}
	engine := NewEngine()

	var mu sync.Mutex
	fetches := 0
	fetch := func(ctx context.Context) ([]int, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return []int{1, 2, 3}, nil
	}
	double := func(in []int) []int {
		out := make([]int, len(in))
		for i, v := range in {
			out[i] = v * 2
		}
		return out
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := Sync(context.Background(), engine, repository.EntityRepository[int](repo), 1, nil, fetch, double)
			if err != nil || len(rows) != 3 || rows[2] != 6 {
				t.Errorf("Sync = %v, %v", rows, err)
			}
		}()
	}
	wg.Wait()

	if fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetches)
	}
}

func TestCanceledCallerDoesNotFailSharedFill(t *testing.T) {
	repo := &memRepo{rows: make(map[string][]int), synced: make(map[string]bool)}
	engine := NewEngine()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var fetchErr error
	fetch := func(ctx context.Context) ([]int, error) {
		once.Do(func() { close(started) })
		<-release
		fetchErr = ctx.Err()
		return []int{7, 8}, nil
	}
	same := func(in []int) []int { return in }

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := Sync(leaderCtx, engine, repository.EntityRepository[int](repo), 1, nil, fetch, same)
		leaderDone <- err
	}()
	<-started

	type result struct {
		rows []int
		err  error
	}
	followerDone := make(chan result, 1)
	go func() {
		rows, err := Sync(context.Background(), engine, repository.EntityRepository[int](repo), 1, nil, fetch, same)
		followerDone <- result{rows, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	if err := <-leaderDone; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	close(release)

	got := <-followerDone
	if got.err != nil || len(got.rows) != 2 || got.rows[0] != 7 {
		t.Fatalf("follower = %v, %v", got.rows, got.err)
	}
	if fetchErr != nil {
		t.Errorf("fetch saw canceled context: %v", fetchErr)
	}
	if synced, _ := repo.Synced(context.Background(), 1, nil); !synced {
		t.Error("fill was not persisted")
	}
}
