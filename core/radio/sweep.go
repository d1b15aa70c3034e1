package radio

import (
	"context"
	"errors"

	"pitwall/core/apperr"
	"pitwall/core/identity"
	"pitwall/logger"
	"pitwall/upstream"
)

// SweepSessionTypes are the sessions that carry team radio worth keeping.
var SweepSessionTypes = []string{"Race", "Qualifying", "Sprint"}

// SweepResult 批量转写结果
type SweepResult struct {
	Year                   int             `json:"year"`
	GP                     string          `json:"gp,omitempty"`
	TotalSessionsProcessed int             `json:"total_sessions_processed"`
	Sessions               []SessionResult `json:"sessions"`
}

// Progress is told about every attempted session.
type Progress func(done, total int, label string)

// Sweeper fans TranscribeSession out over a season or a single event.
type Sweeper struct {
	pipeline *Pipeline
	schedule identity.ScheduleSource
	resolver *identity.Resolver
}

func NewSweeper(pipeline *Pipeline, schedule identity.ScheduleSource, resolver *identity.Resolver) *Sweeper {
	return &Sweeper{pipeline: pipeline, schedule: schedule, resolver: resolver}
}

// Year transcribes every race, qualifying and sprint of the season. A
// failing session is logged and skipped.
func (s *Sweeper) Year(ctx context.Context, year int, progress Progress) (*SweepResult, error) {
	events, err := s.schedule.Schedule(ctx, year)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, apperr.NotFoundf("no schedule for %d", year)
		}
		return nil, apperr.Upstreamf(err, "failed to load %d schedule", year)
	}

	result := &SweepResult{Year: year, Sessions: make([]SessionResult, 0)}
	total := len(events) * len(SweepSessionTypes)
	done := 0
	for _, e := range events {
		for _, st := range SweepSessionTypes {
			if err := s.run(ctx, result, year, e.EventName, st); err != nil {
				return result, err
			}
			done++
			if progress != nil {
				progress(done, total, e.EventName+" "+st)
			}
		}
	}
	return result, nil
}

// GP transcribes the sweep session types of one event.
func (s *Sweeper) GP(ctx context.Context, year int, gp string, progress Progress) (*SweepResult, error) {
	name := s.resolver.ResolveEventName(ctx, gp, year)
	result := &SweepResult{Year: year, GP: name, Sessions: make([]SessionResult, 0)}
	for i, st := range SweepSessionTypes {
		if err := s.run(ctx, result, year, name, st); err != nil {
			return result, err
		}
		if progress != nil {
			progress(i+1, len(SweepSessionTypes), name+" "+st)
		}
	}
	return result, nil
}

// run only returns an error when ctx is done.
func (s *Sweeper) run(ctx context.Context, result *SweepResult, year int, gp, sessionType string) error {
	res, err := s.pipeline.TranscribeSession(ctx, year, gp, sessionType)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if res != nil {
			result.Sessions = append(result.Sessions, *res)
			result.TotalSessionsProcessed = len(result.Sessions)
		}
		return ctxErr
	}
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			logger.Debug("Skipping session", logger.String("gp", gp), logger.String("session_type", sessionType))
		} else {
			logger.Warn("Session sweep failed",
				logger.String("gp", gp),
				logger.String("session_type", sessionType),
				logger.ErrorField(err))
		}
		return nil
	}
	result.Sessions = append(result.Sessions, *res)
	result.TotalSessionsProcessed = len(result.Sessions)
	return nil
}
