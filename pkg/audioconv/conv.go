// Package audioconv decodes compressed audio payloads into the 16 kHz
// mono float32 PCM that the offline transcriber expects, and encodes
// captured PCM back into WAV for upload to the transcription API.
//
// Supported inputs: WAV, MP3, Ogg Vorbis and Ogg Opus. The container is
// detected from the leading magic bytes, so callers can hand over a raw
// browser recording without knowing its format.
package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// TargetRate is the sample rate every decoder resamples to.
const TargetRate = 16000

// ErrUnsupportedFormat is returned when the payload is not a container
// this package can decode.
var ErrUnsupportedFormat = errors.New("audioconv: unsupported audio format")

// Options bound the decode work.
type Options struct {
	// MaxSamples truncates the decoded PCM. Zero means no limit.
	MaxSamples int
}

// ToPCM16k decodes an audio payload into 16 kHz mono float32 samples.
func ToPCM16k(data []byte, opt Options) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrUnsupportedFormat
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(bytes.NewReader(data), opt)
	case bytes.HasPrefix(data, []byte("OggS")):
		if pcm, err := decodeOggVorbis(bytes.NewReader(data), opt); err == nil {
			return pcm, nil
		}
		pcm, err := decodeOggOpus(bytes.NewReader(data), opt)
		if err != nil {
			return nil, fmt.Errorf("audioconv: ogg is neither vorbis nor opus: %w", err)
		}
		return pcm, nil
	case looksLikeMP3(data):
		return decodeMP3(bytes.NewReader(data), opt)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// looksLikeMP3 checks for an ID3 tag or an MPEG frame sync.
func looksLikeMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audioconv: invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("audioconv: empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	x := intToFloat32(pb.Data, depth)

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return finish(x, channels, rate, opt), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	x := int16ToFloat32(ints)

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always emits interleaved stereo.
	return finish(x, 2, rate, opt), nil
}

func decodeOggVorbis(r io.Reader, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("audioconv: invalid ogg/vorbis stream")
	}
	return finish(pcm, format.Channels, format.SampleRate, opt), nil
}

func decodeOggOpus(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	// Opus always decodes at 48 kHz.
	var pcm48 []float32
	buf := make([]int16, 48000*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, int16ToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm48) == 0 {
		return nil, errors.New("audioconv: empty opus stream")
	}
	return finish(pcm48, channels, 48000, opt), nil
}

// finish downmixes, resamples to TargetRate and applies MaxSamples.
func finish(x []float32, channels, rate int, opt Options) []float32 {
	if channels > 1 {
		x = downmix(x, channels)
	}
	if rate != TargetRate {
		x = resample(x, rate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func intToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
