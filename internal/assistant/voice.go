package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"mindmate/internal/audio"
	"mindmate/internal/tts"
)

// Voice speaks replies through the local speakers. Every reply is also
// printed, so the conversation stays readable when audio output is
// unavailable.
type Voice struct {
	synth  *tts.Synthesizer
	player *audio.Player
	out    io.Writer
	logger *slog.Logger
}

// NewVoice builds the local speech output stage.
func NewVoice(synth *tts.Synthesizer, player *audio.Player, out io.Writer, logger *slog.Logger) *Voice {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Voice{
		synth:  synth,
		player: player,
		out:    out,
		logger: logger.With("component", "assistant.voice"),
	}
}

// Say prints and speaks the text. Synthesis and playback failures are
// logged, not returned; the printed text is the fallback of last
// resort. The error is non-nil only when the context is done.
func (v *Voice) Say(ctx context.Context, text string) error {
	fmt.Fprintf(v.out, "MindMate: %s\n", text)

	clip, err := v.synth.Synthesize(ctx, text)
	if err != nil {
		if errors.Is(err, tts.ErrNothingToSay) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.logger.Warn("speech synthesis failed", "error", err)
		return nil
	}

	path, cleanup, err := clip.WriteTemp("")
	if err != nil {
		v.logger.Warn("could not stage clip for playback", "error", err)
		return nil
	}
	defer cleanup()

	if err := v.player.Play(ctx, path); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.logger.Warn("playback failed", "error", err)
	}
	return nil
}
