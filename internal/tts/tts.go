// Package tts synthesizes speech audio for reply text.
//
// Synthesis is delegated to the hosted speech API and returns MP3
// bytes. Clips that touch disk always live in uniquely named temporary
// files and are removed on every exit path.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
)

// ErrNothingToSay is returned when sanitization leaves no speakable text.
var ErrNothingToSay = errors.New("tts: no valid text to speak")

// Clip is one synthesized utterance.
type Clip struct {
	Audio []byte
	MIME  string
	Text  string // sanitized text the clip was synthesized from
}

// Config holds synthesis settings.
type Config struct {
	Model   string
	Voice   string
	MaxLen  int
	TempDir string
	Logger  *slog.Logger
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Model:   "tts-1",
		Voice:   "nova",
		MaxLen:  500,
		TempDir: os.TempDir(),
		Logger:  slog.Default(),
	}
}

// Option is a functional option for New.
type Option func(*Config)

// WithModel sets the synthesis model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithVoice sets the voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithMaxLen bounds the text length sent to the API.
func WithMaxLen(n int) Option {
	return func(c *Config) { c.MaxLen = n }
}

// WithTempDir sets where temporary clips are written.
func WithTempDir(dir string) Option {
	return func(c *Config) { c.TempDir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Synthesizer converts text into speech clips.
type Synthesizer struct {
	api    openai.Client
	config Config
	logger *slog.Logger
}

// New creates a synthesizer on top of an API client.
func New(api openai.Client, opts ...Option) *Synthesizer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Synthesizer{
		api:    api,
		config: cfg,
		logger: cfg.Logger.With("component", "tts"),
	}
}

// Synthesize sanitizes the text and returns the synthesized clip.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Clip, error) {
	clean := Sanitize(text, s.config.MaxLen)
	if clean == "" {
		return nil, ErrNothingToSay
	}

	start := time.Now()
	resp, err := s.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.config.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.config.Voice),
		Input:          clean,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: empty audio from synthesis")
	}

	s.logger.Debug("synthesized clip",
		"chars", len(clean),
		"bytes", len(audio),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &Clip{Audio: audio, MIME: "audio/mpeg", Text: clean}, nil
}

// SynthesizeBase64 synthesizes the text and returns the clip as base64
// for transport. The clip round-trips through a temporary file which is
// removed before returning, on success and failure alike.
func (s *Synthesizer) SynthesizeBase64(ctx context.Context, text string) (string, error) {
	clip, err := s.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}

	path, cleanup, err := clip.WriteTemp(s.config.TempDir)
	if err != nil {
		return "", err
	}
	defer cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read clip: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// WriteTemp writes the clip to a uniquely named file under dir and
// returns its path with a cleanup func. cleanup is safe to call twice.
func (c *Clip) WriteTemp(dir string) (string, func(), error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "mindmate-"+uuid.NewString()+".mp3")

	if err := os.WriteFile(path, c.Audio, 0o600); err != nil {
		return "", nil, fmt.Errorf("write clip: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not remove temporary clip", "path", path, "err", err)
		}
	}
	return path, cleanup, nil
}
