package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

func newFakeRecognizer(t *testing.T, text string) (*OpenAI, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
			t.Errorf("expected multipart upload, got %s", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"` + text + `"}`))
	}))

	api := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return NewOpenAI(api, nil), server.Close
}

func TestTranscribe(t *testing.T) {
	rec, done := newFakeRecognizer(t, "hello there")
	defer done()

	text, err := rec.Transcribe(context.Background(), []byte("RIFFfake-wav-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestTranscribeEmptyPayload(t *testing.T) {
	rec, done := newFakeRecognizer(t, "ignored")
	defer done()

	_, err := rec.Transcribe(context.Background(), nil)
	if !errors.Is(err, ErrNoSpeech) {
		t.Errorf("expected ErrNoSpeech, got %v", err)
	}
}

func TestTranscribeBlankResult(t *testing.T) {
	rec, done := newFakeRecognizer(t, "   ")
	defer done()

	_, err := rec.Transcribe(context.Background(), []byte("RIFFfake-wav-bytes"))
	if !errors.Is(err, ErrUnintelligible) {
		t.Errorf("expected ErrUnintelligible, got %v", err)
	}
}
