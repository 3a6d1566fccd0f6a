// Package assistant composes speech recognition, chat completion, and
// speech synthesis into conversational turns. The same Pipeline backs
// the network server and the local voice loop.
package assistant

import (
	"context"
	"log/slog"
)

// Generator produces assistant replies for user text.
type Generator interface {
	Validate(text string) (clean, rejection string, ok bool)
	Reply(ctx context.Context, text string) (string, error)
}

// Recognizer turns encoded audio into text.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer renders reply text as base64 MP3 for transport.
type Synthesizer interface {
	SynthesizeBase64(ctx context.Context, text string) (string, error)
}

// Pipeline runs one conversational turn end to end.
type Pipeline struct {
	generator   Generator
	recognizer  Recognizer
	synthesizer Synthesizer
	logger      *slog.Logger
}

// NewPipeline wires the three stages together. recognizer and
// synthesizer may be nil when the caller never takes audio turns.
func NewPipeline(g Generator, r Recognizer, s Synthesizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		generator:   g,
		recognizer:  r,
		synthesizer: s,
		logger:      logger.With("component", "assistant.pipeline"),
	}
}

// TextTurn answers one text utterance. Invalid input yields the
// rejection message as the reply; the error is non-nil only when the
// context is done.
func (p *Pipeline) TextTurn(ctx context.Context, text string) (string, error) {
	clean, rejection, ok := p.generator.Validate(text)
	if !ok {
		return rejection, nil
	}
	return p.generator.Reply(ctx, clean)
}

// AudioTurn transcribes the utterance and answers it. Transcription
// failures surface as errors so the caller can report them.
func (p *Pipeline) AudioTurn(ctx context.Context, audio []byte) (transcript, reply string, err error) {
	transcript, err = p.recognizer.Transcribe(ctx, audio)
	if err != nil {
		return "", "", err
	}

	p.logger.Debug("transcribed utterance", "chars", len(transcript))

	reply, err = p.TextTurn(ctx, transcript)
	return transcript, reply, err
}

// Speak renders the reply as base64 MP3. Synthesis failures are logged
// and return an empty string so the text reply still goes out.
func (p *Pipeline) Speak(ctx context.Context, text string) string {
	if p.synthesizer == nil {
		return ""
	}
	audio, err := p.synthesizer.SynthesizeBase64(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("reply synthesis failed", "error", err)
		}
		return ""
	}
	return audio
}
