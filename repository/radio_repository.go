package repository

import (
	"context"
	"errors"

	"pitwall/db"
	"pitwall/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RadioRepository 无线电转写记录的数据访问接口
type RadioRepository interface {
	// Get returns nil, nil when (session, audio url) has no row.
	Get(ctx context.Context, sessionKey uint, audioURL string) (*model.Radio, error)
	// Save inserts a newly discovered artifact or updates the transcript of
	// an existing one. A nil transcript never clears a stored one.
	Save(ctx context.Context, radio *model.Radio) error
	List(ctx context.Context, sessionKey uint, racingNumber string) ([]model.Radio, error)
}

type gormRadioRepository struct {
	db    *gorm.DB
	retry db.RetryConfig
}

func NewGormRadioRepository(gdb *gorm.DB, retry db.RetryConfig) RadioRepository {
	return &gormRadioRepository{db: gdb, retry: retry}
}

func (r *gormRadioRepository) Get(ctx context.Context, sessionKey uint, audioURL string) (*model.Radio, error) {
	var radio model.Radio
	err := r.db.WithContext(ctx).
		Where("session_key = ? AND audio_url = ?", sessionKey, audioURL).
		First(&radio).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &radio, nil
}

func (r *gormRadioRepository) Save(ctx context.Context, radio *model.Radio) error {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "session_key"}, {Name: "audio_url"}},
	}
	if radio.Transcript != nil {
		conflict.DoUpdates = clause.AssignmentColumns([]string{"transcript"})
	} else {
		conflict.DoNothing = true
	}
	return db.WithRetry(ctx, r.retry, "radios.save", func() error {
		return r.db.WithContext(ctx).Clauses(conflict).Create(radio).Error
	})
}

// List 按会话列出无线电记录，racingNumber 为空时不过滤
func (r *gormRadioRepository) List(ctx context.Context, sessionKey uint, racingNumber string) ([]model.Radio, error) {
	radios := make([]model.Radio, 0)
	q := r.db.WithContext(ctx).Where("session_key = ?", sessionKey)
	if racingNumber != "" {
		q = q.Where("racing_number = ?", racingNumber)
	}
	if err := q.Order("utc, radio_key").Find(&radios).Error; err != nil {
		return nil, err
	}
	return radios, nil
}
