package audioconv

import (
	"errors"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV16k encodes 16 kHz mono float32 PCM as a 16-bit WAV payload,
// the format the transcription API accepts for microphone captures.
func EncodeWAV16k(pcm []float32) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("audioconv: no samples to encode")
	}

	ints := make([]int, len(pcm))
	for i, v := range pcm {
		ints[i] = int(clamp(float64(v), -1.0, 1.0) * 32767)
	}

	var ws writeSeeker
	enc := wav.NewEncoder(&ws, TargetRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           ints,
		Format:         &audio.Format{NumChannels: 1, SampleRate: TargetRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back
// to patch the header sizes after writing the data chunk.
type writeSeeker struct {
	buf []byte
	pos int
}

func (ws *writeSeeker) Write(p []byte) (int, error) {
	if need := ws.pos + len(p); need > len(ws.buf) {
		grown := make([]byte, need)
		copy(grown, ws.buf)
		ws.buf = grown
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos += len(p)
	return len(p), nil
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(ws.pos) + offset
	case io.SeekEnd:
		abs = int64(len(ws.buf)) + offset
	default:
		return 0, errors.New("audioconv: invalid seek whence")
	}
	if abs < 0 {
		return 0, errors.New("audioconv: negative seek position")
	}
	ws.pos = int(abs)
	return abs, nil
}
