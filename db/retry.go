package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pitwall/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// RetryConfig bounds the busy-retry applied to store writes.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig 默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		InitialWait: 50 * time.Millisecond,
		MaxWait:     2 * time.Second,
	}
}

// MySQL lock wait timeout and deadlock.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsBusyError reports whether err is lock contention that is worth retrying.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
	}

	// sqlite 驱动只暴露错误文本
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry runs op, retrying busy errors with exponential backoff.
// Non-busy errors are returned immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, name string, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	wait := cfg.InitialWait
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			if attempt > 1 {
				logger.Debug("Store write succeeded after retry",
					logger.String("op", name), logger.Int("attempt", attempt))
			}
			return nil
		}
		if !IsBusyError(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn("Store busy, retrying",
			logger.String("op", name),
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.ErrorField(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return fmt.Errorf("%s: store busy after %d attempts: %w", name, cfg.MaxAttempts, err)
}
