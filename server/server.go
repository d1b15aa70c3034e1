package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pitwall/config"
	"pitwall/core/auth"
	"pitwall/logger"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig 路由相关配置
type RouterConfig struct {
	APIKey               *auth.APIKeyChecker
	TranscribeRatePerMin int                             // 0 关闭限流
	Health               func(ctx context.Context) error // nil 时 /healthz 总是 ok
}

// NewRouter builds the /api/v1 routes around h.
func NewRouter(h *APIHandler, rc RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
	router.Use(requestID, instrument)

	router.HandleFunc("/healthz", healthHandler(rc.Health)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// 赛段数据
	api.HandleFunc("/sessions/{year:[0-9]+}/events", h.EventsHandler).Methods(http.MethodGet)
	sessions := api.PathPrefix("/sessions/{year:[0-9]+}/{gp}/{type}").Subrouter()
	sessions.HandleFunc("/info", h.InfoHandler).Methods(http.MethodGet)
	sessions.HandleFunc("/drivers", listHandler(h.data.Drivers)).Methods(http.MethodGet)
	sessions.HandleFunc("/laps", listHandler(h.data.Laps)).Methods(http.MethodGet)
	sessions.HandleFunc("/laps/{code}", h.DriverLapsHandler).Methods(http.MethodGet)
	sessions.HandleFunc("/pits", listHandler(h.data.PitStops)).Methods(http.MethodGet)
	sessions.HandleFunc("/messages", listHandler(h.data.Messages)).Methods(http.MethodGet)
	sessions.HandleFunc("/weather", listHandler(h.data.Weather)).Methods(http.MethodGet)
	sessions.HandleFunc("/radios", h.RadiosHandler).Methods(http.MethodGet)
	sessions.HandleFunc("/telemetry/{code}/{lap:[0-9]+}", h.TelemetryHandler).Methods(http.MethodGet)

	// 转写接口需要 API Key
	transcribe := api.PathPrefix("/transcribe").Subrouter()
	if rc.TranscribeRatePerMin > 0 {
		transcribe.Use(httprate.LimitByIP(rc.TranscribeRatePerMin, time.Minute))
	}
	apiKey := rc.APIKey
	if apiKey == nil {
		apiKey = auth.NewAPIKeyChecker("")
	}
	transcribe.Use(requireAPIKey(apiKey))
	transcribe.HandleFunc("/year", h.TranscribeYearHandler).Methods(http.MethodPost)
	transcribe.HandleFunc("/gp", h.TranscribeGPHandler).Methods(http.MethodPost)

	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warn("Health check failed", logger.ErrorField(err))
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Ping checks the store connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Start 启动 HTTP 服务器，收到 SIGINT/SIGTERM 后优雅关闭
func Start(cfg *config.Config) error {
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.APIKey.Enabled() {
		logger.Warn("TRANSCRIBE_API_KEY is not set, transcription endpoints will reject every request")
	}

	h := NewAPIHandler(app.Data, app.Pipeline, app.Sweeper)
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: NewRouter(h, RouterConfig{
			APIKey:               app.APIKey,
			TranscribeRatePerMin: cfg.TranscribeRatePerMin,
			Health:               app.Ping,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
