package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pitwall/core/apperr"
	"pitwall/core/identity"
	"pitwall/db"
	"pitwall/repository"
	"pitwall/upstream"
)

type fakeSource struct {
	findCalls int
	infoCalls int
}

func (f *fakeSource) Schedule(ctx context.Context, year int) ([]upstream.ScheduleEvent, error) {
	return []upstream.ScheduleEvent{{Round: 8, EventName: "Monaco Grand Prix"}}, nil
}

func (f *fakeSource) FindSession(ctx context.Context, year int, event, sessionType string) (upstream.SessionRef, error) {
	f.findCalls++
	if event != "Monaco Grand Prix" || sessionType != "Race" {
		return upstream.SessionRef{}, upstream.ErrNotFound
	}
	return upstream.SessionRef{
		Year:        year,
		EventName:   "Monaco Grand Prix",
		SessionName: "Race",
		Date:        time.Date(2023, 5, 28, 13, 0, 0, 0, time.UTC),
		Path:        "2023/2023-05-28_Monaco_Grand_Prix/2023-05-28_Race/",
	}, nil
}

func (f *fakeSource) SessionInfo(ctx context.Context, ref upstream.SessionRef) (upstream.SessionInfo, error) {
	f.infoCalls++
	return upstream.SessionInfo{CircuitName: "Monte Carlo", Location: "Monaco", MeetingName: "Monaco Grand Prix", TotalLaps: 78}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeSource) {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"), 5*time.Second, "error")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	src := &fakeSource{}
	repo := repository.NewGormSessionRepository(gdb, db.DefaultRetryConfig())
	return NewRegistry(repo, src, identity.NewResolver(src)), src
}

func TestIdentity(t *testing.T) {
	got := Identity(time.Date(2023, 5, 28, 13, 0, 0, 0, time.UTC), "Monaco Grand Prix", "Race")
	if want := "28-05-2023-MONACO GRAND PRIX-RACE"; got != want {
		t.Errorf("Identity = %q, want %q", got, want)
	}
}

func TestGetOrCreate(t *testing.T) {
	reg, src := newTestRegistry(t)
	ctx := context.Background()

	first, created, err := reg.GetOrCreate(ctx, 2023, "monaco", "r")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Error("first call should create the session")
	}
	s := first.Session
	if s.SessionID != "28-05-2023-MONACO GRAND PRIX-RACE" || s.NumberOfLaps != 78 || s.CircuitName != "Monte Carlo" {
		t.Errorf("session = %+v", s)
	}

	second, created, err := reg.GetOrCreate(ctx, 2023, "Monaco Grand Prix", "Race")
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if created {
		t.Error("second call should reuse the session")
	}
	if second.Session.SessionKey != s.SessionKey || second.Session.SessionID != s.SessionID {
		t.Errorf("keys differ: %d/%s vs %d/%s", second.Session.SessionKey, second.Session.SessionID, s.SessionKey, s.SessionID)
	}
	if src.infoCalls != 1 {
		t.Errorf("metadata loaded %d times, want 1", src.infoCalls)
	}
	if src.findCalls != 2 {
		t.Errorf("metadata-only lookups = %d, want 2", src.findCalls)
	}
}

func TestGetOrCreateNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, _, err := reg.GetOrCreate(context.Background(), 2023, "monaco", "fp1")
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
