package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pitwall/core/apperr"
	"pitwall/core/radio"
	"pitwall/core/syncer"
	"pitwall/logger"
	"pitwall/model"
	"pitwall/upstream"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// DataService is the session data side of the API.
type DataService interface {
	Info(ctx context.Context, q syncer.Query) (*model.Session, error)
	Events(ctx context.Context, year int) ([]upstream.ScheduleEvent, error)
	Drivers(ctx context.Context, q syncer.Query) ([]model.Driver, error)
	Laps(ctx context.Context, q syncer.Query) ([]model.Lap, error)
	DriverLaps(ctx context.Context, q syncer.Query, code string) ([]model.Lap, error)
	PitStops(ctx context.Context, q syncer.Query) ([]model.PitStop, error)
	Messages(ctx context.Context, q syncer.Query) ([]model.Message, error)
	Weather(ctx context.Context, q syncer.Query) ([]model.Weather, error)
	Telemetry(ctx context.Context, q syncer.Query, code string, lap int) ([]model.TelemetrySample, error)
}

// RadioService lists stored team radio.
type RadioService interface {
	List(ctx context.Context, year int, gp, sessionType, racingNumber string) ([]model.Radio, error)
}

// SweepService runs batch transcriptions.
type SweepService interface {
	Year(ctx context.Context, year int, progress radio.Progress) (*radio.SweepResult, error)
	GP(ctx context.Context, year int, gp string, progress radio.Progress) (*radio.SweepResult, error)
}

// APIHandler 处理所有API请求
type APIHandler struct {
	data     DataService
	radios   RadioService
	sweeper  SweepService
	validate *validator.Validate
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(data DataService, radios RadioService, sweeper SweepService) *APIHandler {
	return &APIHandler{
		data:     data,
		radios:   radios,
		sweeper:  sweeper,
		validate: validator.New(),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps err onto the response status. Only the public message of
// a classified error reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			logger.String("request_id", RequestIDFromContext(r.Context())),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
	}
	writeJSON(w, status, errorBody{Error: apperr.PublicMessage(err)})
}

func pathYear(r *http.Request) (int, error) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		return 0, apperr.Malformedf(err, "invalid year %q", mux.Vars(r)["year"])
	}
	return year, nil
}

func sessionQuery(r *http.Request) (syncer.Query, error) {
	year, err := pathYear(r)
	if err != nil {
		return syncer.Query{}, err
	}
	vars := mux.Vars(r)
	return syncer.Query{Year: year, GP: vars["gp"], SessionType: vars["type"]}, nil
}

// listHandler adapts a session-scoped list operation to an HTTP handler.
func listHandler[T any](fetch func(ctx context.Context, q syncer.Query) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := sessionQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows, err := fetch(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rows == nil {
			rows = []T{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.data.Events(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *APIHandler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	q, err := sessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.data.Info(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DriverLapsHandler 单个车手的圈速，code 可以是车号或三字母缩写
func (h *APIHandler) DriverLapsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := sessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	laps, err := h.data.DriverLaps(r.Context(), q, mux.Vars(r)["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, laps)
}

type lapTelemetry struct {
	LapNumber int                     `json:"lap_number"`
	Telemetry []model.TelemetrySample `json:"telemetry"`
}

func (h *APIHandler) TelemetryHandler(w http.ResponseWriter, r *http.Request) {
	q, err := sessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	lap, err := strconv.Atoi(vars["lap"])
	if err != nil || lap < 1 {
		writeError(w, r, apperr.Malformedf(err, "invalid lap %q", vars["lap"]))
		return
	}
	samples, err := h.data.Telemetry(r.Context(), q, vars["code"], lap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []lapTelemetry{{LapNumber: lap, Telemetry: samples}})
}

type radiosResponse struct {
	TotalMessages int           `json:"total_messages"`
	Messages      []model.Radio `json:"messages"`
}

// RadiosHandler lists stored team radio, optionally filtered by ?driver=.
func (h *APIHandler) RadiosHandler(w http.ResponseWriter, r *http.Request) {
	q, err := sessionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	driver := strings.TrimSpace(r.URL.Query().Get("driver"))
	radios, err := h.radios.List(r.Context(), q.Year, q.GP, q.SessionType, driver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if radios == nil {
		radios = []model.Radio{}
	}
	writeJSON(w, http.StatusOK, radiosResponse{TotalMessages: len(radios), Messages: radios})
}

type transcribeYearRequest struct {
	Year int `json:"year" validate:"required,min=1950,max=2100"`
}

type transcribeGPRequest struct {
	Year int    `json:"year" validate:"required,min=1950,max=2100"`
	GP   string `json:"gp" validate:"required"`
}

// decodeBody 解析并校验请求体
func (h *APIHandler) decodeBody(r *http.Request, dst interface{}, msg string) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Malformedf(err, "%s", msg)
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.Malformedf(err, "%s", msg)
	}
	return nil
}

// sweepLog reports sweep progress in the server log.
func sweepLog(r *http.Request) radio.Progress {
	id := RequestIDFromContext(r.Context())
	return func(done, total int, label string) {
		logger.Info("Transcription progress",
			logger.String("request_id", id),
			logger.Int("done", done),
			logger.Int("total", total),
			logger.String("session", label))
	}
}

// clearWriteDeadline lifts the server write timeout; a sweep may run for
// much longer than an ordinary request.
func clearWriteDeadline(w http.ResponseWriter) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("Failed to clear write deadline", logger.ErrorField(err))
	}
}

// sweepContext keeps a sweep running after the client goes away; clips
// already in progress are finished and persisted either way.
func sweepContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *APIHandler) TranscribeYearHandler(w http.ResponseWriter, r *http.Request) {
	var req transcribeYearRequest
	if err := h.decodeBody(r, &req, "Year is required in request body"); err != nil {
		writeError(w, r, err)
		return
	}
	clearWriteDeadline(w)

	result, err := h.sweeper.Year(sweepContext(r), req.Year, sweepLog(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) TranscribeGPHandler(w http.ResponseWriter, r *http.Request) {
	var req transcribeGPRequest
	if err := h.decodeBody(r, &req, "Year and gp are required in request body"); err != nil {
		writeError(w, r, err)
		return
	}
	clearWriteDeadline(w)

	result, err := h.sweeper.GP(sweepContext(r), req.Year, req.GP, sweepLog(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
