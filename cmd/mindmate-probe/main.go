// mindmate-probe is a small WebSocket client for poking a running
// server: send one text or audio message and print what comes back.
package main

import (
	"encoding/base64"
	"os"

	cli "github.com/spf13/pflag"

	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
	log "log/slog"

	"mindmate/pkg/wire"
)

func main() {
	url := cli.StringP("url", "u", "ws://localhost:8000/ws", "server WebSocket URL")
	text := cli.StringP("text", "t", "Hello, how are you today?", "text message to send")
	wavPath := cli.StringP("wav", "w", "", "send this WAV file instead of text")
	outPath := cli.StringP("out", "o", "", "save the reply audio clip to this file")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: log.LevelInfo,
	})))

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Error("Failed to connect", "url", *url, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	var msg *wire.ClientMessage
	if *wavPath != "" {
		data, err := os.ReadFile(*wavPath)
		if err != nil {
			log.Error("Failed to read audio file", "path", *wavPath, "err", err)
			os.Exit(1)
		}
		msg = wire.NewAudioMessage(data)
		log.Info("Sending audio", "path", *wavPath, "bytes", len(data))
	} else {
		msg = wire.NewTextMessage(*text)
		log.Info("Sending text", "text", *text)
	}

	if err := conn.WriteJSON(msg); err != nil {
		log.Error("Failed to send message", "err", err)
		os.Exit(1)
	}

	var reply wire.ServerMessage
	if err := conn.ReadJSON(&reply); err != nil {
		log.Error("Failed to read reply", "err", err)
		os.Exit(1)
	}

	if reply.Type == wire.TypeError {
		log.Error("Server reported an error", "text", reply.Text)
		os.Exit(1)
	}

	log.Info("Reply received", "type", reply.Type, "text", reply.Text, "has_audio", reply.Audio != "")

	if *outPath != "" && reply.Audio != "" {
		clip, err := base64.StdEncoding.DecodeString(reply.Audio)
		if err != nil {
			log.Error("Reply audio is not valid base64", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outPath, clip, 0o644); err != nil {
			log.Error("Failed to save clip", "path", *outPath, "err", err)
			os.Exit(1)
		}
		log.Info("Saved reply audio", "path", *outPath, "bytes", len(clip))
	}
}
