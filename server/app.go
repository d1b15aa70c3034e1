package server

import (
	"context"
	"fmt"
	"time"

	"pitwall/cache"
	"pitwall/config"
	"pitwall/core/auth"
	"pitwall/core/identity"
	"pitwall/core/radio"
	"pitwall/core/registry"
	"pitwall/core/syncer"
	"pitwall/core/transcribe"
	"pitwall/db"
	"pitwall/livetiming"
	"pitwall/logger"
	"pitwall/repository"
	"pitwall/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 进程内共享的依赖，启动时创建一次
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Audio    *storage.AudioArchive
	Timing   *livetiming.Client
	Registry *registry.Registry
	Data     *syncer.Service
	Pipeline *radio.Pipeline
	Sweeper  *radio.Sweeper
	APIKey   *auth.APIKeyChecker
}

// NewApp opens the store and builds every service. Redis and MinIO are
// optional; a failed connection to either is logged and the feature is
// skipped.
func NewApp(cfg *config.Config) (*App, error) {
	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		db.Close(gdb)
		return nil, err
	}

	app := &App{Config: cfg, DB: gdb, APIKey: auth.NewAPIKeyChecker(cfg.TranscribeAPIKey)}

	var docs cache.DocumentCache = cache.NewMemoryDocumentCache(cfg.DocumentCacheTTL)
	if cfg.RedisEnabled {
		client, err := cache.ConnectRedis(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory document cache", logger.ErrorField(err))
		} else {
			app.Redis = client
			docs = cache.NewRedisDocumentCache(client, cfg.DocumentCacheTTL)
			logger.Info("Redis document cache enabled",
				logger.String("addr", fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)))
		}
	}

	if cfg.MinioEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, err := storage.NewAudioArchive(ctx, cfg)
		cancel()
		if err != nil {
			logger.Warn("MinIO unavailable, radio audio will not be mirrored", logger.ErrorField(err))
		} else {
			app.Audio = archive
		}
	}

	app.Timing = livetiming.NewClient(cfg.LiveTimingBaseURL,
		livetiming.WithTimeout(cfg.UpstreamTimeout),
		livetiming.WithRateLimit(cfg.UpstreamRPS),
		livetiming.WithDocumentCache(docs),
		livetiming.WithLiveIndexTTL(cfg.LiveIndexTTL))

	retry := db.DefaultRetryConfig()
	if cfg.DBRetryAttempts > 0 {
		retry.MaxAttempts = cfg.DBRetryAttempts
	}

	resolver := identity.NewResolver(app.Timing)
	app.Registry = registry.NewRegistry(repository.NewGormSessionRepository(gdb, retry), app.Timing, resolver)
	app.Data = syncer.NewService(app.Registry, app.Timing, repository.NewGormCaches(gdb, retry))

	transcriber, err := transcribe.New(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	opts := []radio.Option{
		radio.WithTempDir(cfg.TempDir),
		radio.WithTranscribeTimeout(cfg.TranscribeTimeout),
	}
	if app.Audio != nil {
		opts = append(opts, radio.WithAudioStore(app.Audio))
	}
	app.Pipeline = radio.NewPipeline(app.Registry, app.Timing, transcriber,
		repository.NewGormRadioRepository(gdb, retry), opts...)
	app.Sweeper = radio.NewSweeper(app.Pipeline, app.Timing, resolver)

	return app, nil
}

// Close releases the store and the Redis client.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("Failed to close Redis", logger.ErrorField(err))
		}
	}
	if err := db.Close(a.DB); err != nil {
		logger.Warn("Failed to close database", logger.ErrorField(err))
	}
}
