package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI recognizes speech through the hosted whisper-1 model.
type OpenAI struct {
	api    openai.Client
	model  openai.AudioModel
	logger *slog.Logger
}

// NewOpenAI creates the hosted recognizer.
func NewOpenAI(api openai.Client, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		api:    api,
		model:  openai.AudioModelWhisper1,
		logger: logger.With("component", "stt.openai"),
	}
}

// Transcribe uploads the audio payload and returns the recognized text.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}

	start := time.Now()
	resp, err := o.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "utterance.wav", "audio/wav"),
		Model: o.model,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnintelligible
	}

	o.logger.Debug("transcribed",
		"bytes", len(audio),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var _ Recognizer = (*OpenAI)(nil)
