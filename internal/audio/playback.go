package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// ErrPlaybackFailed means every playback strategy was tried and none
// produced sound. The caller should fall back to showing the text.
var ErrPlaybackFailed = errors.New("audio: all playback strategies failed")

// Strategy is one way of getting an MP3 file to the speakers.
type Strategy interface {
	Name() string
	Play(ctx context.Context, path string) error
}

// Player tries its strategies in order until one succeeds.
type Player struct {
	strategies []Strategy
	ducker     *Ducker
	logger     *slog.Logger
}

// NewPlayer builds a player with the default strategy order: in-process
// decoding first, then handing the file to a platform player.
func NewPlayer(logger *slog.Logger, strategies ...Strategy) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{
			&SpeakerStrategy{},
			&CommandStrategy{},
		}
	}
	return &Player{
		strategies: strategies,
		logger:     logger.With("component", "audio.player"),
	}
}

// SetDucker makes the player lower other applications' streams while it
// plays. Best effort; playback proceeds even if ducking fails.
func (p *Player) SetDucker(d *Ducker) {
	p.ducker = d
}

// Play sends the MP3 at path to the speakers, trying each strategy in
// order. Returns ErrPlaybackFailed when none succeed.
func (p *Player) Play(ctx context.Context, path string) error {
	if p.ducker != nil {
		if err := p.ducker.Duck(ctx); err != nil {
			p.logger.Debug("ducking unavailable", "error", err)
		} else {
			defer p.ducker.Restore(context.WithoutCancel(ctx))
		}
	}

	for _, s := range p.strategies {
		err := s.Play(ctx, path)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("playback strategy failed",
			"strategy", s.Name(),
			"error", err,
		)
	}
	return ErrPlaybackFailed
}

// SpeakerStrategy decodes the MP3 in process and streams it to the
// default output device.
type SpeakerStrategy struct{}

func (s *SpeakerStrategy) Name() string { return "speaker" }

func (s *SpeakerStrategy) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// CommandStrategy shells out to whatever audio player the platform
// ships with.
type CommandStrategy struct{}

func (s *CommandStrategy) Name() string { return "command" }

func (s *CommandStrategy) Play(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "afplay", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/C", "start", "/wait", "", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("platform player: %w", err)
	}
	return nil
}
