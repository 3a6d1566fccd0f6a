// mindmate-server exposes the assistant over HTTP and WebSocket for
// browser and API clients.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mindmate/internal/assistant"
	"mindmate/internal/chat"
	"mindmate/internal/config"
	"mindmate/internal/proxy"
	"mindmate/internal/server"
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
	addr := cli.StringP("addr", "a", "", "listen address (overrides MINDMATE_ADDR)")
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
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *proxyAddr != "" {
		cfg.ProxyAddr = *proxyAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.ProxyAddr != "" {
		httpClient, err := proxy.NewSocksClient(cfg.ProxyAddr, proxy.DefaultTimeout)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.ProxyAddr, "err", err)
			os.Exit(1)
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	api := openai.NewClient(opts...)

	gen := chat.New(api,
		chat.WithModel(cfg.ChatModel),
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithMaxTokens(cfg.MaxTokens),
		chat.WithMaxInputLen(cfg.MaxInputLen),
		chat.WithRetry(cfg.MaxRetries, cfg.RetryDelay, cfg.MaxDelay),
		chat.WithLogger(log.Default()),
	)
	recognizer := stt.NewOpenAI(api, log.Default())
	synth := tts.New(api,
		tts.WithModel(cfg.TTSModel),
		tts.WithVoice(cfg.TTSVoice),
		tts.WithMaxLen(cfg.MaxSpeakLen),
		tts.WithTempDir(cfg.TempDir),
		tts.WithLogger(log.Default()),
	)

	pipeline := assistant.NewPipeline(gen, recognizer, synth, log.Default())
	srv := server.New(pipeline, server.Config{
		Addr:      cfg.Addr,
		StaticDir: cfg.StaticDir,
	}, log.Default())

	go func() {
		<-ctx.Done()
		log.Info("Shutdown signal received")
		if err := srv.Shutdown(); err != nil {
			log.Error("Shutdown failed", "err", err)
		}
	}()

	log.Info("Boot up - successful")

	if err := srv.Listen(); err != nil {
		log.Error("Server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
