package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"mindmate/internal/audio"
	"mindmate/internal/chat"
	"mindmate/internal/stt"
	"mindmate/pkg/audioconv"
)

// Spoken phrases of the local loop.
const (
	MsgGreeting      = "Hello! I'm your MindMate assistant. How can I help you today?"
	MsgFarewell      = "Goodbye! Have a great day!"
	MsgTryAgain      = "I didn't catch that. Please try again."
	MsgTurnError     = "I encountered an error. Let's try that again."
	MsgNoReply       = "I'm sorry, I couldn't generate a response. Please try again."
	MsgCheckMic      = "I'm having trouble understanding you. Please check your microphone and try again."
	MsgTooManyIssues = "I'm having too many issues. Please restart me."
)

var exitPhrases = []string{"exit", "quit", "bye", "goodbye"}

// ErrTooManyErrors shuts the loop down after repeated failed turns.
var ErrTooManyErrors = errors.New("assistant: too many consecutive errors")

const (
	warnAfterErrors     = 3
	shutdownAfterErrors = 6

	maxListenTimeout = 15 * time.Second
	maxAttemptPause  = 5 * time.Second
)

// State names the phase the loop is in, for logging.
type State int

const (
	StateListening State = iota
	StateTranscribing
	StateGenerating
	StateSpeaking
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Listener captures one phrase of microphone audio.
type Listener interface {
	Capture(ctx context.Context, timeout, phraseLimit time.Duration) ([]float32, error)
}

// Speaker voices one reply.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// LoopConfig tunes the listen phase of the local loop.
type LoopConfig struct {
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	MaxAttempts   int
	Out           io.Writer
	Logger        *slog.Logger
}

// Loop is the local voice conversation: listen, transcribe, generate,
// speak, repeat until an exit phrase or shutdown.
type Loop struct {
	pipeline *Pipeline
	listener Listener
	speaker  Speaker

	listenTimeout time.Duration
	phraseLimit   time.Duration
	maxAttempts   int

	state        State
	errStreak    int
	turnFailures int

	out    io.Writer
	logger *slog.Logger
}

// NewLoop assembles the conversation loop.
func NewLoop(pipeline *Pipeline, listener Listener, speaker Speaker, cfg LoopConfig) *Loop {
	if cfg.ListenTimeout <= 0 {
		cfg.ListenTimeout = 5 * time.Second
	}
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = 15 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		pipeline:      pipeline,
		listener:      listener,
		speaker:       speaker,
		listenTimeout: cfg.ListenTimeout,
		phraseLimit:   cfg.PhraseLimit,
		maxAttempts:   cfg.MaxAttempts,
		out:           cfg.Out,
		logger:        cfg.Logger.With("component", "assistant.loop"),
	}
}

// Run drives the conversation until the user says goodbye, the context
// is cancelled, or too many turns fail in a row.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.speaker.Say(ctx, MsgGreeting); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateShuttingDown)
			return err
		}

		text, err := l.hear(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			l.setState(StateShuttingDown)
			return err
		case errors.Is(err, audio.ErrListenTimeout),
			errors.Is(err, stt.ErrNoSpeech),
			errors.Is(err, stt.ErrUnintelligible):
			if ferr := l.failTurn(ctx, chat.MsgDidntCatch, false); ferr != nil {
				return ferr
			}
			continue
		default:
			if ferr := l.failTurn(ctx, MsgTurnError, true); ferr != nil {
				return ferr
			}
			continue
		}

		fmt.Fprintf(l.out, "You: %s\n", text)

		if isExitPhrase(text) {
			l.setState(StateShuttingDown)
			l.speaker.Say(ctx, MsgFarewell)
			return nil
		}

		l.setState(StateGenerating)
		reply, err := l.pipeline.TextTurn(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateShuttingDown)
				return ctx.Err()
			}
			if ferr := l.failTurn(ctx, MsgTurnError, true); ferr != nil {
				return ferr
			}
			continue
		}
		if reply == "" {
			// The input was heard and understood, so the error
			// counters reset even without a reply.
			if err := l.speaker.Say(ctx, MsgNoReply); err != nil {
				return err
			}
			l.errStreak, l.turnFailures = 0, 0
			continue
		}

		l.setState(StateSpeaking)
		if err := l.speaker.Say(ctx, reply); err != nil {
			l.setState(StateShuttingDown)
			return err
		}
		l.errStreak, l.turnFailures = 0, 0
	}
}

// hear runs the listen attempts for one turn: capture a phrase, then
// transcribe it. The timeout grows after each silent attempt.
func (l *Loop) hear(ctx context.Context) (string, error) {
	timeout := l.listenTimeout
	var lastErr error

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 0 {
			if err := l.speaker.Say(ctx, MsgTryAgain); err != nil {
				return "", err
			}
			if err := sleep(ctx, minDuration(timeout, maxAttemptPause)); err != nil {
				return "", err
			}
			timeout = minDuration(timeout*3/2, maxListenTimeout)
		}

		l.setState(StateListening)
		pcm, err := l.listener.Capture(ctx, timeout, l.phraseLimit)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, audio.ErrListenTimeout) {
				l.logger.Warn("capture failed", "error", err)
			}
			lastErr = err
			continue
		}

		l.setState(StateTranscribing)
		wav, err := audioconv.EncodeWAV16k(pcm)
		if err != nil {
			lastErr = err
			continue
		}

		text, err := l.pipeline.recognizer.Transcribe(ctx, wav)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, stt.ErrNoSpeech) && !errors.Is(err, stt.ErrUnintelligible) {
				// Service errors won't resolve by retrying the mic.
				l.logger.Warn("transcription failed", "error", err)
				return "", err
			}
			lastErr = err
			continue
		}
		return text, nil
	}

	if lastErr == nil {
		lastErr = audio.ErrListenTimeout
	}
	return "", lastErr
}

// failTurn voices the given message and advances the error counters.
// Every failure feeds the streak behind the microphone warning, which
// resets once the warning is spoken, so silence alone never ends the
// conversation. hard marks failures past the microphone, and only
// those accumulate toward the forced shutdown.
func (l *Loop) failTurn(ctx context.Context, msg string, hard bool) error {
	l.errStreak++
	if hard {
		l.turnFailures++
	}
	l.logger.Debug("turn failed", "consecutive_errors", l.errStreak, "turn_failures", l.turnFailures)

	if l.turnFailures > shutdownAfterErrors {
		l.setState(StateShuttingDown)
		l.speaker.Say(ctx, MsgTooManyIssues)
		return ErrTooManyErrors
	}

	if err := l.speaker.Say(ctx, msg); err != nil {
		return err
	}
	if l.errStreak >= warnAfterErrors {
		if err := l.speaker.Say(ctx, MsgCheckMic); err != nil {
			return err
		}
		l.errStreak = 0
	}
	if hard {
		// Brief pause so a broken backend doesn't spin the loop.
		return sleep(ctx, minDuration(l.listenTimeout, time.Second))
	}
	return nil
}

func (l *Loop) setState(s State) {
	if l.state == s {
		return
	}
	l.logger.Debug("state change", "from", l.state.String(), "to", s.String())
	l.state = s
}

func isExitPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range exitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
