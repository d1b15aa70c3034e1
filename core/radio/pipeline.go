package radio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"pitwall/core/apperr"
	"pitwall/core/registry"
	"pitwall/core/transcribe"
	"pitwall/logger"
	"pitwall/metrics"
	"pitwall/model"
	"pitwall/repository"
	"pitwall/upstream"

	"github.com/dustin/go-humanize"
)

// SessionResolver registers the session a sweep works on.
type SessionResolver interface {
	GetOrCreate(ctx context.Context, year int, gp, sessionType string) (*registry.Handle, bool, error)
}

// Archive is the timing archive side used by the pipeline.
type Archive interface {
	TeamRadio(ctx context.Context, ref upstream.SessionRef) ([]byte, error)
	ResolveURL(ref upstream.SessionRef, rel string) string
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// AudioStore mirrors downloaded clips so retries skip the archive.
type AudioStore interface {
	Get(ctx context.Context, audioURL string) ([]byte, bool, error)
	Put(ctx context.Context, audioURL string, data []byte) error
}

// SessionResult 单个赛段的转写统计
type SessionResult struct {
	Year               int    `json:"year"`
	GP                 string `json:"gp"`
	SessionType        string `json:"session_type"`
	TotalMessages      int    `json:"total_messages"`
	Transcribed        int    `json:"transcribed"`
	AlreadyTranscribed int    `json:"already_transcribed"`
	Failed             int    `json:"failed"`
}

// Pipeline 无线电转写流水线
type Pipeline struct {
	sessions    SessionResolver
	archive     Archive
	transcriber transcribe.Transcriber
	radios      repository.RadioRepository
	store       AudioStore
	tempDir     string
	timeout     time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAudioStore enables the clip mirror.
func WithAudioStore(store AudioStore) Option {
	return func(p *Pipeline) { p.store = store }
}

func WithTempDir(dir string) Option {
	return func(p *Pipeline) { p.tempDir = dir }
}

// WithTranscribeTimeout bounds each transcription call. Zero means no bound.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func NewPipeline(sessions SessionResolver, archive Archive, transcriber transcribe.Transcriber, radios repository.RadioRepository, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions:    sessions,
		archive:     archive,
		transcriber: transcriber,
		radios:      radios,
		tempDir:     os.TempDir(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// List returns the stored radio rows of a session, optionally for one car.
func (p *Pipeline) List(ctx context.Context, year int, gp, sessionType, racingNumber string) ([]model.Radio, error) {
	h, _, err := p.sessions.GetOrCreate(ctx, year, gp, sessionType)
	if err != nil {
		return nil, err
	}
	radios, err := p.radios.List(ctx, h.Session.SessionKey, racingNumber)
	if err != nil {
		return nil, apperr.Upstreamf(err, "failed to read radios")
	}
	return radios, nil
}

// TranscribeSession discovers the session's clips and transcribes those
// without a transcript. Each clip is persisted as soon as it is done, so an
// interrupted run can simply be repeated. Per-clip failures are counted and
// logged, never returned.
func (p *Pipeline) TranscribeSession(ctx context.Context, year int, gp, sessionType string) (*SessionResult, error) {
	h, _, err := p.sessions.GetOrCreate(ctx, year, gp, sessionType)
	if err != nil {
		return nil, err
	}

	manifest, err := p.archive.TeamRadio(ctx, h.Ref)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, apperr.NotFoundf("no team radio for %s", h.Session.SessionID)
		}
		return nil, apperr.Upstreamf(err, "failed to fetch team radio manifest for %s", h.Session.SessionID)
	}
	artifacts := ParseManifest(manifest)

	result := &SessionResult{
		Year:          year,
		GP:            h.Session.GP,
		SessionType:   h.Session.SessionType,
		TotalMessages: len(artifacts),
	}
	logger.Info("Transcribing team radio",
		logger.String("session_id", h.Session.SessionID),
		logger.Int("messages", len(artifacts)))

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch p.process(ctx, h, a) {
		case outcomeTranscribed:
			result.Transcribed++
		case outcomeAlready:
			result.AlreadyTranscribed++
		default:
			result.Failed++
		}
	}

	logger.Info("Team radio done",
		logger.String("session_id", h.Session.SessionID),
		logger.Int("transcribed", result.Transcribed),
		logger.Int("already_transcribed", result.AlreadyTranscribed),
		logger.Int("failed", result.Failed))
	return result, nil
}

type outcome string

const (
	outcomeTranscribed outcome = "transcribed"
	outcomeAlready     outcome = "already_transcribed"
	outcomeFailed      outcome = "failed"
)

func (p *Pipeline) process(ctx context.Context, h *registry.Handle, a Artifact) (out outcome) {
	defer func() { metrics.RadioArtifacts.WithLabelValues(string(out)).Inc() }()

	sessionKey := h.Session.SessionKey
	url := p.archive.ResolveURL(h.Ref, a.Path)

	existing, err := p.radios.Get(ctx, sessionKey, url)
	if err != nil {
		logger.Warn("Failed to read radio row", logger.String("audio_url", url), logger.ErrorField(err))
		return outcomeFailed
	}
	if existing.Transcribed() {
		return outcomeAlready
	}

	row := &model.Radio{
		SessionKey:   sessionKey,
		Timestamp:    a.Timestamp,
		Utc:          a.Utc,
		RacingNumber: a.RacingNumber,
		AudioURL:     url,
	}

	text, err := p.transcribe(ctx, url)
	if err != nil {
		logger.Warn("Transcription failed",
			logger.String("audio_url", url),
			logger.String("racing_number", a.RacingNumber),
			logger.ErrorField(err))
		// 新发现的录音也要落库，下次运行会重试
		if existing == nil {
			if err := p.radios.Save(ctx, row); err != nil {
				logger.Warn("Failed to save radio row", logger.String("audio_url", url), logger.ErrorField(err))
			}
		}
		return outcomeFailed
	}

	row.Transcript = &text
	if err := p.radios.Save(ctx, row); err != nil {
		logger.Warn("Failed to save transcript", logger.String("audio_url", url), logger.ErrorField(err))
		return outcomeFailed
	}
	return outcomeTranscribed
}

// fetchAudio reads the clip from the mirror when present, otherwise from the
// archive, mirroring it afterwards.
func (p *Pipeline) fetchAudio(ctx context.Context, url string) ([]byte, error) {
	if p.store != nil {
		data, ok, err := p.store.Get(ctx, url)
		if err != nil {
			logger.Warn("Audio mirror read failed", logger.String("audio_url", url), logger.ErrorField(err))
		} else if ok {
			return data, nil
		}
	}

	data, err := p.archive.FetchAudio(ctx, url)
	if err != nil {
		return nil, err
	}
	if p.store != nil {
		if err := p.store.Put(ctx, url, data); err != nil {
			logger.Warn("Audio mirror write failed", logger.String("audio_url", url), logger.ErrorField(err))
		}
	}
	return data, nil
}

func (p *Pipeline) transcribe(ctx context.Context, url string) (string, error) {
	data, err := p.fetchAudio(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}

	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	ext := path.Ext(url)
	if ext == "" || strings.ContainsAny(ext, "?#") {
		ext = ".mp3"
	}
	f, err := os.CreateTemp(p.tempDir, "radio-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	tctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.transcriber.Transcribe(tctx, tmpPath)
	metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty transcript")
	}

	logger.Debug("Transcribed clip",
		logger.String("audio_url", url),
		logger.String("size", humanize.Bytes(uint64(len(data)))),
		logger.Duration("took", time.Since(start)))
	return text, nil
}
