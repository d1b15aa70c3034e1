package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WhisperCLI runs the openai-whisper command line tool.
type WhisperCLI struct {
	binPath  string
	model    string
	language string
}

// NewWhisperCLI creates a WhisperCLI.
func NewWhisperCLI(binPath, model, language string) *WhisperCLI {
	if binPath == "" {
		binPath = "whisper"
	}
	return &WhisperCLI{binPath: binPath, model: model, language: language}
}

func (w *WhisperCLI) args(audioPath, outDir string) []string {
	args := []string{audioPath}
	if w.model != "" {
		args = append(args, "--model", w.model)
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	return append(args,
		"--output_format", "txt",
		"--output_dir", outDir,
		"--verbose", "False",
	)
}

// Transcribe 调用 whisper 并读取生成的 txt 文件
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisper-*")
	if err != nil {
		return "", fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.binPath, w.args(audioPath, outDir)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("whisper for %s: %w", audioPath, ctx.Err())
		}
		return "", fmt.Errorf("whisper execution failed for %s: %w\nWhisper Error: %s", audioPath, err, stderr.String())
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	text, err := os.ReadFile(filepath.Join(outDir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
