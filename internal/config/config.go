// Package config loads MindMate settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingAPIKey aborts startup; there is no useful degraded mode
// without the completion API.
var ErrMissingAPIKey = errors.New("config: OPENAI_API_KEY not set")

// STT backend selectors.
const (
	STTOpenAI  = "openai"
	STTWhisper = "whisper"
)

// Config holds every tunable for both entry points.
type Config struct {
	APIKey    string
	ProxyAddr string // optional SOCKS5 proxy for API traffic

	// Server
	Addr      string
	StaticDir string

	// Generation
	ChatModel    string
	SystemPrompt string
	MaxTokens    int64
	Temperature  float64
	MaxInputLen  int
	MaxRetries   int
	RetryDelay   time.Duration
	MaxDelay     time.Duration

	// Speech to text
	STTBackend   string
	WhisperModel string // ggml model path for the offline backend

	// Text to speech
	TTSModel    string
	TTSVoice    string
	MaxSpeakLen int
	TempDir     string

	// Capture
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	MaxAttempts   int

	// Playback
	DuckOthers bool
}

// systemPrompt is the fixed MindMate persona sent with every completion.
const systemPrompt = `You are a friendly, supportive, and empathetic friend named MindMate.
Your personality is warm, understanding, and always positive. You never mention being an AI or chatbot.
Instead, you're just a good friend who's always there to listen and help.
Keep your responses natural, casual, and conversational. Show genuine interest
in the conversation and be concise but thoughtful in your responses.`

// Load reads the environment and applies defaults. The API key is the
// only hard requirement.
func Load() (*Config, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &Config{
		APIKey:    key,
		ProxyAddr: os.Getenv("MINDMATE_PROXY"),

		Addr:      envStr("MINDMATE_ADDR", ":8000"),
		StaticDir: envStr("MINDMATE_STATIC_DIR", "./web"),

		ChatModel:    envStr("MINDMATE_CHAT_MODEL", "gpt-4o-mini"),
		SystemPrompt: systemPrompt,
		MaxTokens:    int64(envInt("MINDMATE_MAX_TOKENS", 200)),
		Temperature:  0.8,
		MaxInputLen:  envInt("MINDMATE_MAX_INPUT", 1000),
		MaxRetries:   envInt("MINDMATE_MAX_RETRIES", 3),
		RetryDelay:   envDuration("MINDMATE_RETRY_DELAY", time.Second),
		MaxDelay:     envDuration("MINDMATE_MAX_DELAY", 10*time.Second),

		STTBackend:   envStr("MINDMATE_STT", STTOpenAI),
		WhisperModel: os.Getenv("MINDMATE_WHISPER_MODEL"),

		TTSModel:    envStr("MINDMATE_TTS_MODEL", "tts-1"),
		TTSVoice:    envStr("MINDMATE_TTS_VOICE", "nova"),
		MaxSpeakLen: envInt("MINDMATE_MAX_SPEAK", 500),
		TempDir:     envStr("MINDMATE_TEMP_DIR", os.TempDir()),

		ListenTimeout: envDuration("MINDMATE_LISTEN_TIMEOUT", 5*time.Second),
		PhraseLimit:   envDuration("MINDMATE_PHRASE_LIMIT", 15*time.Second),
		MaxAttempts:   envInt("MINDMATE_LISTEN_ATTEMPTS", 3),

		DuckOthers: envBool("MINDMATE_DUCK", false),
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
