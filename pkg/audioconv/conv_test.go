package audioconv

import (
	"errors"
	"math"
	"testing"
)

func TestToPCM16kRejectsUnknownFormat(t *testing.T) {
	cases := map[string][]byte{
		"empty":   nil,
		"short":   {0x01, 0x02},
		"garbage": []byte("this is not audio at all"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ToPCM16k(data, Options{}); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	// One second of a 440 Hz tone at the target rate.
	pcm := make([]float32, TargetRate)
	for i := range pcm {
		pcm[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/TargetRate))
	}

	wav, err := EncodeWAV16k(pcm)
	if err != nil {
		t.Fatalf("EncodeWAV16k: %v", err)
	}

	got, err := ToPCM16k(wav, Options{})
	if err != nil {
		t.Fatalf("ToPCM16k: %v", err)
	}
	if len(got) != len(pcm) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(pcm))
	}

	// 16-bit quantization allows one LSB of error.
	const tol = 2.0 / 32768.0
	for i := range pcm {
		if diff := math.Abs(float64(got[i] - pcm[i])); diff > tol {
			t.Fatalf("sample %d: got %v, want %v (diff %v)", i, got[i], pcm[i], diff)
		}
	}
}

func TestWAVRoundTripMaxSamples(t *testing.T) {
	pcm := make([]float32, TargetRate)
	wav, err := EncodeWAV16k(pcm)
	if err != nil {
		t.Fatalf("EncodeWAV16k: %v", err)
	}

	got, err := ToPCM16k(wav, Options{MaxSamples: 1000})
	if err != nil {
		t.Fatalf("ToPCM16k: %v", err)
	}
	if len(got) != 1000 {
		t.Errorf("decoded %d samples, want 1000", len(got))
	}
}

func TestEncodeWAV16kEmpty(t *testing.T) {
	if _, err := EncodeWAV16k(nil); err == nil {
		t.Error("EncodeWAV16k(nil) = nil error, want failure")
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	mono := downmix(stereo, 2)

	want := []float32{0.5, 0.5, 0}
	if len(mono) != len(want) {
		t.Fatalf("downmix produced %d frames, want %d", len(mono), len(want))
	}
	for i := range want {
		if math.Abs(float64(mono[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d = %v, want %v", i, mono[i], want[i])
		}
	}
}

func TestResample(t *testing.T) {
	t.Run("downsample halves length", func(t *testing.T) {
		in := make([]float32, 32000)
		out := resample(in, 32000, TargetRate)
		if len(out) != 16000 {
			t.Errorf("resampled to %d samples, want 16000", len(out))
		}
	})

	t.Run("same rate is identity", func(t *testing.T) {
		in := []float32{0.1, 0.2, 0.3}
		out := resample(in, TargetRate, TargetRate)
		if len(out) != len(in) {
			t.Fatalf("length changed: %d", len(out))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("sample %d changed: %v != %v", i, out[i], in[i])
			}
		}
	})

	t.Run("constant signal stays constant", func(t *testing.T) {
		in := make([]float32, 4410)
		for i := range in {
			in[i] = 0.25
		}
		out := resample(in, 44100, TargetRate)
		for i, v := range out {
			if math.Abs(float64(v-0.25)) > 1e-6 {
				t.Fatalf("sample %d = %v, want 0.25", i, v)
			}
		}
	})
}
