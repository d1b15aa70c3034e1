package repository

import (
	"context"
	"errors"

	"pitwall/db"
	"pitwall/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository 赛段注册表的数据访问接口
type SessionRepository interface {
	GetByIdentity(ctx context.Context, sessionID string) (*model.Session, error)
	GetByKey(ctx context.Context, key uint) (*model.Session, error)
	// CreateIfAbsent inserts s unless its identity already exists.
	// created is false when another writer got there first.
	CreateIfAbsent(ctx context.Context, s *model.Session) (created bool, err error)
}

type gormSessionRepository struct {
	db    *gorm.DB
	retry db.RetryConfig
}

// NewGormSessionRepository 创建 GORM 赛段仓库
func NewGormSessionRepository(gdb *gorm.DB, retry db.RetryConfig) SessionRepository {
	return &gormSessionRepository{db: gdb, retry: retry}
}

// GetByIdentity returns nil, nil when no session has the identity.
func (r *gormSessionRepository) GetByIdentity(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormSessionRepository) GetByKey(ctx context.Context, key uint) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).First(&s, "session_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormSessionRepository) CreateIfAbsent(ctx context.Context, s *model.Session) (bool, error) {
	var created bool
	err := db.WithRetry(ctx, r.retry, "sessions.create", func() error {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
			Create(s)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	return created, err
}
