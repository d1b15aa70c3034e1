// Package syncer implements the cache-aside policy shared by every entity
// cache: serve a completed scope from the store, otherwise fetch it from the
// data source, transform it and persist it together with its marker.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitwall/core/apperr"
	"pitwall/logger"
	"pitwall/metrics"
	"pitwall/repository"
	"pitwall/upstream"

	"golang.org/x/sync/singleflight"
)

// DefaultFillTimeout bounds one shared fill.
const DefaultFillTimeout = 2 * time.Minute

// Engine coalesces concurrent fills of the same scope.
type Engine struct {
	group       singleflight.Group
	fillTimeout time.Duration
}

func NewEngine() *Engine {
	return &Engine{fillTimeout: DefaultFillTimeout}
}

// Sync returns the rows of (sessionKey, scope) from repo, filling the cache
// from fetch on a miss. A fetch error wrapping upstream.ErrNotFound becomes
// an apperr.NotFound, anything else an apperr.Upstream.
//
// The fill is shared by every caller waiting on the scope and runs detached
// from the caller that started it, bounded by the engine's fill timeout. A
// caller whose ctx ends stops waiting; the fill goes on for the others.
func Sync[U any, T any](
	ctx context.Context,
	e *Engine,
	repo repository.EntityRepository[T],
	sessionKey uint,
	scope repository.Scope,
	fetch func(ctx context.Context) ([]U, error),
	transform func([]U) []T,
) ([]T, error) {
	entity := repo.Entity()

	rows, hit, err := cached(ctx, repo, sessionKey, scope)
	if err != nil {
		metrics.SyncOutcomes.WithLabelValues(entity, "error").Inc()
		return nil, err
	}
	if hit {
		metrics.SyncOutcomes.WithLabelValues(entity, "hit").Inc()
		return rows, nil
	}

	key := fmt.Sprintf("%d/%s/%s", sessionKey, entity, scope.Key())
	ch := e.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fillTimeout)
		defer cancel()

		// 等待期间可能已被其他请求填充
		if rows, hit, err := cached(fctx, repo, sessionKey, scope); err != nil || hit {
			return rows, err
		}

		remote, err := fetch(fctx)
		if err != nil {
			return nil, classify(err, entity, scope)
		}
		fresh := transform(remote)
		if err := repo.Replace(fctx, sessionKey, scope, fresh); err != nil {
			return nil, apperr.Upstreamf(err, "failed to store %s", entity)
		}

		metrics.SyncRowsWritten.WithLabelValues(entity).Add(float64(len(fresh)))
		logger.Debug("Cache filled",
			logger.String("entity", entity),
			logger.Uint("session_key", sessionKey),
			logger.String("scope", scope.Key()),
			logger.Int("rows", len(fresh)))
		return fresh, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.SyncOutcomes.WithLabelValues(entity, "canceled").Inc()
		return nil, ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		outcome := "error"
		if apperr.Is(err, apperr.NotFound) {
			outcome = "not_found"
		}
		metrics.SyncOutcomes.WithLabelValues(entity, outcome).Inc()
		return nil, err
	}
	if !shared {
		metrics.SyncOutcomes.WithLabelValues(entity, "miss").Inc()
	}
	return v.([]T), nil
}

func cached[T any](ctx context.Context, repo repository.EntityRepository[T], sessionKey uint, scope repository.Scope) ([]T, bool, error) {
	synced, err := repo.Synced(ctx, sessionKey, scope)
	if err != nil {
		return nil, false, apperr.Upstreamf(err, "failed to read %s cache", repo.Entity())
	}
	if !synced {
		return nil, false, nil
	}
	rows, err := repo.Find(ctx, sessionKey, scope)
	if err != nil {
		return nil, false, apperr.Upstreamf(err, "failed to read %s cache", repo.Entity())
	}
	return rows, true, nil
}

func classify(err error, entity string, scope repository.Scope) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, upstream.ErrNotFound):
		if len(scope) > 0 {
			return apperr.NotFoundf("%s not found for %s", entity, scope.Key())
		}
		return apperr.NotFoundf("%s not found", entity)
	default:
		return apperr.Upstreamf(err, "failed to fetch %s", entity)
	}
}
