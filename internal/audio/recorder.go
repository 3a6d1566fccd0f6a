// Package audio owns the local sound devices: microphone capture with
// ambient-noise calibration, speaker playback with an ordered fallback
// chain, and optional ducking of other applications' streams.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Typed capture outcomes, so callers branch on error kinds instead of
// message substrings.
var (
	// ErrListenTimeout means no speech crossed the threshold within
	// the listen timeout.
	ErrListenTimeout = errors.New("audio: no speech detected within the time limit")

	// ErrNoMicrophone means no default input device is available.
	ErrNoMicrophone = errors.New("audio: no default input device available")
)

const (
	sampleRate = 16000
	frameSize  = 320 // 20ms at 16 kHz

	// Trailing silence that ends a phrase once speech has started.
	silenceTail = 800 * time.Millisecond

	// Floor for the speech threshold; calibration can only raise it.
	minThresholdRMS = 0.015
)

// Recorder captures microphone audio as 16 kHz mono float32 PCM.
type Recorder struct {
	threshold float64
	logger    *slog.Logger
}

// NewRecorder creates a recorder with the default speech threshold.
// Call Init before use and Close when done.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		threshold: minThresholdRMS,
		logger:    logger.With("component", "audio.recorder"),
	}
}

// Init initializes the audio host API.
func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

// Close terminates the audio host API.
func (r *Recorder) Close() {
	portaudio.Terminate()
}

// CheckMicrophone verifies that a default input device exists. Used at
// startup so a missing microphone fails before the first turn.
func (r *Recorder) CheckMicrophone() error {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		return ErrNoMicrophone
	}
	return nil
}

// Calibrate samples ambient noise for the given duration and raises the
// speech threshold above it. Short calibrations are fine; a second is
// plenty in a quiet room.
func (r *Recorder) Calibrate(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		duration = time.Second
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return ErrNoMicrophone
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	frames := int(duration / (20 * time.Millisecond))
	if frames < 1 {
		frames = 1
	}

	var sum float64
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			return err
		}
		sum += frameRMS(buf)
	}

	ambient := sum / float64(frames)
	threshold := ambient * 1.8
	if threshold < minThresholdRMS {
		threshold = minThresholdRMS
	}
	r.threshold = threshold

	r.logger.Debug("calibrated for ambient noise",
		"ambient_rms", ambient,
		"threshold", threshold,
	)
	return nil
}

// Capture listens for one phrase. It waits up to timeout for speech to
// cross the threshold (ErrListenTimeout otherwise), then records until
// the trailing silence or phraseLimit ends the phrase.
func (r *Recorder) Capture(ctx context.Context, timeout, phraseLimit time.Duration) ([]float32, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if phraseLimit <= 0 || phraseLimit > 15*time.Second {
		phraseLimit = 15 * time.Second
	}

	buf := make([]float32, frameSize)
	out := make([]float32, 0, sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, ErrNoMicrophone
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silenceFrames int
	)

	waitDeadline := time.Now().Add(timeout)
	phraseDeadline := time.Time{}
	silenceLimit := int(silenceTail / (20 * time.Millisecond))

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := time.Now()
		if !speaking && now.After(waitDeadline) {
			return nil, ErrListenTimeout
		}
		if speaking && now.After(phraseDeadline) {
			break
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		rms := frameRMS(buf)
		switch {
		case rms > r.threshold:
			if !speaking {
				speaking = true
				phraseDeadline = now.Add(phraseLimit)
			}
			silenceFrames = 0
			out = append(out, buf...)
		case speaking:
			silenceFrames++
			if silenceFrames >= silenceLimit {
				return out, nil
			}
			out = append(out, buf...)
		}
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
