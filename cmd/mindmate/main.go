// mindmate is the local voice loop: it listens on the microphone,
// answers through the chat API, and speaks replies on the speakers.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mindmate/internal/assistant"
	"mindmate/internal/audio"
	"mindmate/internal/chat"
	"mindmate/internal/config"
	"mindmate/internal/proxy"
	"mindmate/internal/stt"
	"mindmate/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS5 proxy address for API traffic")
	logLevel := cli.StringP("log", "l", "info", "log level (debug|info|warn|error)")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Error("Configuration error", "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.ProxyAddr = *proxyAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := newAPIClient(cfg)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.ProxyAddr, "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(log.Default())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	if err := rec.CheckMicrophone(); err != nil {
		log.Error("No microphone available", "err", err)
		os.Exit(1)
	}
	if err := rec.Calibrate(ctx, time.Second); err != nil {
		log.Warn("Ambient noise calibration failed", "err", err)
	}

	recognizer, closeRecognizer, err := newRecognizer(cfg, api)
	if err != nil {
		log.Error("Failed to init speech recognition", "backend", cfg.STTBackend, "err", err)
		os.Exit(1)
	}
	defer closeRecognizer()

	gen := chat.New(api,
		chat.WithModel(cfg.ChatModel),
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithMaxTokens(cfg.MaxTokens),
		chat.WithMaxInputLen(cfg.MaxInputLen),
		chat.WithRetry(cfg.MaxRetries, cfg.RetryDelay, cfg.MaxDelay),
		chat.WithLogger(log.Default()),
	)
	synth := tts.New(api,
		tts.WithModel(cfg.TTSModel),
		tts.WithVoice(cfg.TTSVoice),
		tts.WithMaxLen(cfg.MaxSpeakLen),
		tts.WithTempDir(cfg.TempDir),
		tts.WithLogger(log.Default()),
	)

	player := audio.NewPlayer(log.Default())
	if cfg.DuckOthers {
		player.SetDucker(audio.NewDucker("mindmate"))
	}

	voice := assistant.NewVoice(synth, player, os.Stdout, log.Default())
	pipeline := assistant.NewPipeline(gen, recognizer, nil, log.Default())
	loop := assistant.NewLoop(pipeline, rec, voice, assistant.LoopConfig{
		ListenTimeout: cfg.ListenTimeout,
		PhraseLimit:   cfg.PhraseLimit,
		MaxAttempts:   cfg.MaxAttempts,
		Logger:        log.Default(),
	})

	log.Info("Boot up - successful")

	err = loop.Run(ctx)
	switch {
	case err == nil:
		log.Info("Conversation ended")
	case errors.Is(err, context.Canceled):
		log.Info("Shutdown signal received")
	case errors.Is(err, assistant.ErrTooManyErrors):
		log.Error("Shutting down after repeated errors")
		os.Exit(1)
	default:
		log.Error("Assistant stopped", "err", err)
		os.Exit(1)
	}
}

func newAPIClient(cfg *config.Config) (openai.Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.ProxyAddr != "" {
		httpClient, err := proxy.NewSocksClient(cfg.ProxyAddr, proxy.DefaultTimeout)
		if err != nil {
			return openai.Client{}, err
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return openai.NewClient(opts...), nil
}

func newRecognizer(cfg *config.Config, api openai.Client) (stt.Recognizer, func(), error) {
	if cfg.STTBackend == config.STTWhisper {
		w, err := stt.NewWhisper(cfg.WhisperModel, stt.WhisperOptions{}, log.Default())
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	}
	return stt.NewOpenAI(api, log.Default()), func() {}, nil
}
