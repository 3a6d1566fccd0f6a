// Package stt turns recorded audio into text.
//
// Two backends implement Recognizer: the hosted whisper-1 API (default)
// and an offline whisper.cpp model. Outcomes are classified with typed
// errors instead of string matching: no speech, unintelligible audio,
// or a terminal service error.
package stt

import (
	"context"
	"errors"
)

// Sentinel outcomes.
var (
	// ErrNoSpeech means nothing was said within the listen timeout.
	// Produced by the capture layer, consumed by the attempt loop.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrUnintelligible means audio was captured but no words came out.
	ErrUnintelligible = errors.New("stt: could not understand audio")
)

// Recognizer converts one audio payload into text.
type Recognizer interface {
	// Transcribe returns the recognized text for the payload.
	// A service failure is terminal; callers must not retry it.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
