// Package registry maps resolved session identities to durable session keys.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pitwall/core/apperr"
	"pitwall/core/identity"
	"pitwall/logger"
	"pitwall/metrics"
	"pitwall/model"
	"pitwall/repository"
	"pitwall/upstream"
)

// Source is the metadata side of the timing data source.
type Source interface {
	FindSession(ctx context.Context, year int, event, sessionType string) (upstream.SessionRef, error)
	SessionInfo(ctx context.Context, ref upstream.SessionRef) (upstream.SessionInfo, error)
}

// Handle 已注册的赛段及其归档引用
type Handle struct {
	Session *model.Session
	Ref     upstream.SessionRef
}

// Registry 赛段注册表
type Registry struct {
	sessions repository.SessionRepository
	source   Source
	resolver *identity.Resolver
}

func NewRegistry(sessions repository.SessionRepository, source Source, resolver *identity.Resolver) *Registry {
	return &Registry{sessions: sessions, source: source, resolver: resolver}
}

// Identity builds the canonical session identity, e.g.
// "28-05-2023-MONACO GRAND PRIX-RACE".
func Identity(date time.Time, event, sessionType string) string {
	return fmt.Sprintf("%s-%s-%s", date.UTC().Format("02-01-2006"),
		strings.ToUpper(event), strings.ToUpper(sessionType))
}

// Resolve runs the metadata-only lookup and returns the session reference
// together with its canonical identity.
func (r *Registry) Resolve(ctx context.Context, year int, gp, sessionType string) (upstream.SessionRef, string, error) {
	event := r.resolver.ResolveEventName(ctx, gp, year)
	stype := identity.ResolveSessionType(sessionType)

	ref, err := r.source.FindSession(ctx, year, event, stype)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return upstream.SessionRef{}, "", apperr.NotFoundf("session %d %s %s not found", year, event, stype)
		}
		return upstream.SessionRef{}, "", apperr.Upstreamf(err, "failed to look up session %d %s %s", year, event, stype)
	}
	return ref, Identity(ref.Date, ref.EventName, ref.SessionName), nil
}

// GetOrCreate returns the registered session, creating it on first sight.
// created reports whether this call inserted the row.
func (r *Registry) GetOrCreate(ctx context.Context, year int, gp, sessionType string) (*Handle, bool, error) {
	ref, sessionID, err := r.Resolve(ctx, year, gp, sessionType)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.sessions.GetByIdentity(ctx, sessionID)
	if err != nil {
		return nil, false, apperr.Upstreamf(err, "failed to read session %s", sessionID)
	}
	if existing != nil {
		return &Handle{Session: existing, Ref: ref}, false, nil
	}

	// 首次出现，加载完整元数据
	info, err := r.source.SessionInfo(ctx, ref)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, false, apperr.NotFoundf("session %s has no metadata", sessionID)
		}
		return nil, false, apperr.Upstreamf(err, "failed to load session %s", sessionID)
	}

	eventName := info.MeetingName
	if eventName == "" {
		eventName = ref.EventName
	}
	row := &model.Session{
		SessionID:    sessionID,
		Year:         year,
		GP:           ref.EventName,
		SessionType:  ref.SessionName,
		Date:         ref.Date,
		CircuitName:  info.CircuitName,
		Location:     info.Location,
		NumberOfLaps: info.TotalLaps,
		EventName:    eventName,
		ArchivePath:  ref.Path,
	}
	created, err := r.sessions.CreateIfAbsent(ctx, row)
	if err != nil {
		return nil, false, apperr.Upstreamf(err, "failed to create session %s", sessionID)
	}

	// a concurrent creator may have won the insert
	stored, err := r.sessions.GetByIdentity(ctx, sessionID)
	if err != nil {
		return nil, false, apperr.Upstreamf(err, "failed to read session %s", sessionID)
	}
	if stored == nil {
		return nil, false, apperr.Internalf(nil, "session %s vanished after insert", sessionID)
	}

	if created {
		metrics.SessionsCreated.Inc()
		logger.Info("Session registered",
			logger.String("session_id", sessionID),
			logger.Uint("session_key", stored.SessionKey),
			logger.String("path", ref.Path))
	}
	return &Handle{Session: stored, Ref: ref}, created, nil
}
