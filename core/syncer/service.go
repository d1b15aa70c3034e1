package syncer

import (
	"context"
	"errors"
	"fmt"

	"pitwall/core/apperr"
	"pitwall/core/registry"
	"pitwall/model"
	"pitwall/repository"
	"pitwall/upstream"
)

// Source is the data side of the timing data source.
type Source interface {
	Schedule(ctx context.Context, year int) ([]upstream.ScheduleEvent, error)
	Drivers(ctx context.Context, ref upstream.SessionRef) ([]upstream.Driver, error)
	Laps(ctx context.Context, ref upstream.SessionRef) ([]upstream.Lap, error)
	Telemetry(ctx context.Context, ref upstream.SessionRef, driverNumber string, lapNumber int) ([]upstream.TelemetrySample, error)
	RaceControl(ctx context.Context, ref upstream.SessionRef) ([]upstream.RaceControlMessage, error)
	Weather(ctx context.Context, ref upstream.SessionRef) ([]upstream.WeatherSample, error)
}

// Query names a session the way clients type it.
type Query struct {
	Year        int
	GP          string
	SessionType string
}

func (q Query) String() string {
	return fmt.Sprintf("%d %s %s", q.Year, q.GP, q.SessionType)
}

// Service 会话数据查询服务，所有实体走同一套 cache-aside 流程
type Service struct {
	engine   *Engine
	registry *registry.Registry
	source   Source
	caches   repository.Caches
}

func NewService(reg *registry.Registry, source Source, caches repository.Caches) *Service {
	return &Service{
		engine:   NewEngine(),
		registry: reg,
		source:   source,
		caches:   caches,
	}
}

func (s *Service) session(ctx context.Context, q Query) (*registry.Handle, error) {
	h, _, err := s.registry.GetOrCreate(ctx, q.Year, q.GP, q.SessionType)
	return h, err
}

// Info returns the session registry row.
func (s *Service) Info(ctx context.Context, q Query) (*model.Session, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	return h.Session, nil
}

// Events 返回赛季赛历，不落库
func (s *Service) Events(ctx context.Context, year int) ([]upstream.ScheduleEvent, error) {
	events, err := s.source.Schedule(ctx, year)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, apperr.NotFoundf("no schedule for %d", year)
		}
		return nil, apperr.Upstreamf(err, "failed to load %d schedule", year)
	}
	return events, nil
}

func (s *Service) Drivers(ctx context.Context, q Query) ([]model.Driver, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.drivers(ctx, h)
}

func (s *Service) drivers(ctx context.Context, h *registry.Handle) ([]model.Driver, error) {
	key := h.Session.SessionKey
	return Sync(ctx, s.engine, s.caches.Drivers, key, nil,
		func(ctx context.Context) ([]upstream.Driver, error) { return s.source.Drivers(ctx, h.Ref) },
		func(d []upstream.Driver) []model.Driver { return driverRows(key, d) })
}

func (s *Service) Laps(ctx context.Context, q Query) ([]model.Lap, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	key := h.Session.SessionKey
	return Sync(ctx, s.engine, s.caches.Laps, key, nil,
		func(ctx context.Context) ([]upstream.Lap, error) { return s.source.Laps(ctx, h.Ref) },
		func(l []upstream.Lap) []model.Lap { return lapRows(key, l) })
}

// DriverLaps filters the session lap cache by racing number or abbreviation.
func (s *Service) DriverLaps(ctx context.Context, q Query, code string) ([]model.Lap, error) {
	laps, err := s.Laps(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]model.Lap, 0)
	for _, l := range laps {
		if sameDriver(code, l.DriverCode, l.Driver) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, apperr.NotFoundf("no laps for driver %s in %s", code, q)
	}
	return out, nil
}

// PitStops derives stops from the lap stream; it never reads a separate feed.
func (s *Service) PitStops(ctx context.Context, q Query) ([]model.PitStop, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	key := h.Session.SessionKey
	return Sync(ctx, s.engine, s.caches.PitStops, key, nil,
		func(ctx context.Context) ([]upstream.Lap, error) { return s.source.Laps(ctx, h.Ref) },
		func(l []upstream.Lap) []model.PitStop { return pitStopRows(key, l) })
}

func (s *Service) Messages(ctx context.Context, q Query) ([]model.Message, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	key := h.Session.SessionKey
	return Sync(ctx, s.engine, s.caches.Messages, key, nil,
		func(ctx context.Context) ([]upstream.RaceControlMessage, error) {
			return s.source.RaceControl(ctx, h.Ref)
		},
		func(m []upstream.RaceControlMessage) []model.Message { return messageRows(key, m) })
}

func (s *Service) Weather(ctx context.Context, q Query) ([]model.Weather, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	key := h.Session.SessionKey
	return Sync(ctx, s.engine, s.caches.Weather, key, nil,
		func(ctx context.Context) ([]upstream.WeatherSample, error) { return s.source.Weather(ctx, h.Ref) },
		func(w []upstream.WeatherSample) []model.Weather { return weatherRows(key, w) })
}

// Telemetry returns one driver's samples for one lap. The driver is checked
// against the cached roster before any telemetry is fetched.
func (s *Service) Telemetry(ctx context.Context, q Query, code string, lap int) ([]model.TelemetrySample, error) {
	h, err := s.session(ctx, q)
	if err != nil {
		return nil, err
	}
	drivers, err := s.drivers(ctx, h)
	if err != nil {
		return nil, err
	}
	number := ""
	for _, d := range drivers {
		if sameDriver(code, d.DriverCode, d.Abbreviation) {
			number = d.DriverCode
			break
		}
	}
	if number == "" {
		return nil, apperr.NotFoundf("driver %s not found in %s", code, q)
	}

	key := h.Session.SessionKey
	scope := repository.Scope{"driver_code": number, "lap_number": lap}
	return Sync(ctx, s.engine, s.caches.Telemetry, key, scope,
		func(ctx context.Context) ([]upstream.TelemetrySample, error) {
			return s.source.Telemetry(ctx, h.Ref, number, lap)
		},
		func(t []upstream.TelemetrySample) []model.TelemetrySample { return telemetryRows(key, number, lap, t) })
}
