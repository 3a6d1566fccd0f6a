package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"mindmate/pkg/audioconv"
)

// Whisper recognizes speech offline with a local whisper.cpp model.
// Select it with MINDMATE_STT=whisper and point MINDMATE_WHISPER_MODEL
// at a ggml model file.
type Whisper struct {
	model    whisper.Model
	language string
	threads  int
	logger   *slog.Logger
}

// WhisperOptions configure the offline recognizer.
type WhisperOptions struct {
	Language string // "auto" when empty
	Threads  int    // <=0 means NumCPU
}

// NewWhisper loads the ggml model at modelPath.
func NewWhisper(modelPath string, opt WhisperOptions, logger *slog.Logger) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("stt: whisper model path required")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}

	lang := opt.Language
	if lang == "" {
		lang = "auto"
	}
	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Whisper{
		model:    m,
		language: lang,
		threads:  threads,
		logger:   logger.With("component", "stt.whisper"),
	}, nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

// Transcribe decodes the payload to 16 kHz mono PCM and runs the model.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}

	pcm, err := audioconv.ToPCM16k(audio, audioconv.Options{})
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	return w.TranscribePCM(ctx, pcm)
}

// TranscribePCM runs the model on 16 kHz mono float32 samples. The CLI
// path uses this directly and skips the WAV round trip.
func (w *Whisper) TranscribePCM(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(w.threads))

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", ErrUnintelligible
	}

	w.logger.Debug("transcribed offline", "samples", len(pcm), "chars", len(text))
	return text, nil
}

var _ Recognizer = (*Whisper)(nil)
