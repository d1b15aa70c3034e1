package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pitwall/db"
	"pitwall/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batchSize 批量插入大小
const batchSize = 500

// Scope narrows an entity cache inside a session, e.g. telemetry for one
// driver and lap. Keys are column names. A nil Scope covers the session.
type Scope map[string]interface{}

// Key is the stable marker representation of the scope.
func (s Scope) Key() string {
	if len(s) == 0 {
		return "*"
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, s[k]))
	}
	return strings.Join(parts, ",")
}

// EntityRepository is the cache table of one entity type.
type EntityRepository[T any] interface {
	// Synced reports whether a completeness marker exists for the scope.
	Synced(ctx context.Context, sessionKey uint, scope Scope) (bool, error)
	// Find returns the cached rows of the scope.
	Find(ctx context.Context, sessionKey uint, scope Scope) ([]T, error)
	// Replace atomically swaps the scope's rows for rows and writes the marker.
	Replace(ctx context.Context, sessionKey uint, scope Scope, rows []T) error
	Entity() string
}

type gormEntityRepository[T any] struct {
	db     *gorm.DB
	entity string
	order  string
	retry  db.RetryConfig
}

// NewGormEntityRepository 创建实体缓存仓库
// order is the ORDER BY clause used when reading rows back.
func NewGormEntityRepository[T any](gdb *gorm.DB, entity, order string, retry db.RetryConfig) EntityRepository[T] {
	return &gormEntityRepository[T]{db: gdb, entity: entity, order: order, retry: retry}
}

func (r *gormEntityRepository[T]) Entity() string { return r.entity }

func (r *gormEntityRepository[T]) Synced(ctx context.Context, sessionKey uint, scope Scope) (bool, error) {
	var marker model.SyncMarker
	err := r.db.WithContext(ctx).
		Where("session_key = ? AND entity = ? AND scope = ?", sessionKey, r.entity, scope.Key()).
		First(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *gormEntityRepository[T]) scoped(tx *gorm.DB, sessionKey uint, scope Scope) *gorm.DB {
	q := tx.Where("session_key = ?", sessionKey)
	if len(scope) > 0 {
		q = q.Where(map[string]interface{}(scope))
	}
	return q
}

func (r *gormEntityRepository[T]) Find(ctx context.Context, sessionKey uint, scope Scope) ([]T, error) {
	rows := make([]T, 0)
	q := r.scoped(r.db.WithContext(ctx), sessionKey, scope)
	if r.order != "" {
		q = q.Order(r.order)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Replace 在一个事务内删除旧行、写入新行并更新同步标记
// Rows left by an interrupted earlier attempt are removed first.
func (r *gormEntityRepository[T]) Replace(ctx context.Context, sessionKey uint, scope Scope, rows []T) error {
	return db.WithRetry(ctx, r.retry, r.entity+".replace", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := r.scoped(tx, sessionKey, scope).Delete(new(T)).Error; err != nil {
				return fmt.Errorf("clear stale %s rows: %w", r.entity, err)
			}
			if len(rows) > 0 {
				if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
					return fmt.Errorf("insert %s rows: %w", r.entity, err)
				}
			}
			marker := model.SyncMarker{
				SessionKey: sessionKey,
				Entity:     r.entity,
				Scope:      scope.Key(),
				RowCount:   len(rows),
				SyncedAt:   time.Now().UTC(),
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_key"}, {Name: "entity"}, {Name: "scope"}},
				DoUpdates: clause.AssignmentColumns([]string{"row_count", "synced_at"}),
			}).Create(&marker).Error
		})
	})
}
