// Package transcribe provides the speech-to-text backends used by the radio
// pipeline.
package transcribe

import (
	"context"
	"fmt"

	"pitwall/config"
)

const (
	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
)

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// New 根据 TRANSCRIBER 选择实现
func New(cfg *config.Config) (Transcriber, error) {
	switch cfg.Transcriber {
	case BackendWhisper, "":
		return NewWhisperCLI(cfg.WhisperPath, cfg.WhisperModel, cfg.WhisperLanguage), nil
	case BackendOpenAI:
		if cfg.STTAPIKey == "" {
			return nil, fmt.Errorf("STT_API_KEY is required for the %s transcriber", BackendOpenAI)
		}
		return NewOpenAIClient(cfg.STTAPIURL, cfg.STTAPIKey, cfg.STTModel, cfg.WhisperLanguage), nil
	default:
		return nil, fmt.Errorf("unsupported TRANSCRIBER %q", cfg.Transcriber)
	}
}
