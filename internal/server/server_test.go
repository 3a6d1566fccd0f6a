package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"mindmate/internal/assistant"
	"mindmate/pkg/wire"
)

type stubGenerator struct{}

func (stubGenerator) Validate(text string) (string, string, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", "I didn't catch that. Could you please repeat?", false
	}
	return t, "", true
}

func (stubGenerator) Reply(ctx context.Context, text string) (string, error) {
	return "echo: " + text, nil
}

type stubRecognizer struct {
	text  string
	calls atomic.Int32
}

func (r *stubRecognizer) Transcribe(ctx context.Context, audio []byte) (string, error) {
	r.calls.Add(1)
	return r.text, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) SynthesizeBase64(ctx context.Context, text string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte("mp3:" + text)), nil
}

type brokenSynthesizer struct{}

func (brokenSynthesizer) SynthesizeBase64(ctx context.Context, text string) (string, error) {
	return "", errors.New("speech api down")
}

func newTestServer(t *testing.T) (*Server, *stubRecognizer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &stubRecognizer{text: "spoken words"}
	pipeline := assistant.NewPipeline(stubGenerator{}, rec, stubSynthesizer{}, logger)
	return New(pipeline, Config{Addr: ":0"}, logger), rec
}

// dialWS binds the server to a random port and opens a client
// connection to /ws.
func dialWS(t *testing.T, s *Server) *gws.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go s.Listener(ln)
	t.Cleanup(func() { s.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readReply(t *testing.T, conn *gws.Conn) wire.ServerMessage {
	t.Helper()
	var m wire.ServerMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptestRequest("GET", "/health", ""))
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Message != healthMessage {
		t.Errorf("message = %q, want %q", body.Message, healthMessage)
	}
}

func TestChatEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptestRequest("POST", "/api/chat", `{"text":"hello"}`))
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Response != "echo: hello" {
		t.Errorf("response = %q", body.Response)
	}
}

func TestChatEndpointRejectsEmptyText(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptestRequest("POST", "/api/chat", `{"text":"  "}`))
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body.Response, "didn't catch that") {
		t.Errorf("response = %q, want rejection message", body.Response)
	}
}

func TestChatEndpointInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptestRequest("POST", "/api/chat", "{not json"))
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.app.Test(httptestRequest("GET", "/ws", ""))
	if err != nil {
		t.Fatalf("ws request: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestWebSocketTextTurn(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(wire.NewTextMessage("hi there")); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readReply(t, conn)
	if m.Type != wire.TypeTextResponse {
		t.Errorf("type = %q, want %q", m.Type, wire.TypeTextResponse)
	}
	if m.Text != "echo: hi there" {
		t.Errorf("text = %q", m.Text)
	}
	if m.Audio == "" {
		t.Error("audio missing from text response")
	}
}

func TestWebSocketAudioTurn(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(wire.NewAudioMessage([]byte("fake wav bytes"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readReply(t, conn)
	if m.Type != wire.TypeAudioResponse {
		t.Errorf("type = %q, want %q", m.Type, wire.TypeAudioResponse)
	}
	if m.Text != "echo: spoken words" {
		t.Errorf("text = %q", m.Text)
	}
	if m.Audio == "" {
		t.Error("audio missing from audio response")
	}
}

func TestWebSocketSynthesisFailureKeepsText(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := assistant.NewPipeline(stubGenerator{}, &stubRecognizer{}, brokenSynthesizer{}, logger)
	s := New(pipeline, Config{Addr: ":0"}, logger)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(wire.NewTextMessage("hi there")); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readReply(t, conn)
	if m.Type != wire.TypeTextResponse {
		t.Fatalf("type = %q, want %q", m.Type, wire.TypeTextResponse)
	}
	if m.Text != "echo: hi there" {
		t.Errorf("text = %q", m.Text)
	}
	if m.Audio != "" {
		t.Errorf("audio = %q, want none when synthesis fails", m.Audio)
	}
}

func TestWebSocketEmptyAudioKeepsConnection(t *testing.T) {
	s, rec := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(&wire.ClientMessage{Type: wire.TypeAudio}); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readReply(t, conn)
	if m.Type != wire.TypeError {
		t.Fatalf("type = %q, want %q", m.Type, wire.TypeError)
	}
	if m.Text != "No audio data received" {
		t.Errorf("text = %q", m.Text)
	}
	if n := rec.calls.Load(); n != 0 {
		t.Errorf("recognizer called %d times for empty audio", n)
	}

	// The connection must survive the error and serve the next turn.
	if err := conn.WriteJSON(wire.NewTextMessage("still here")); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	m = readReply(t, conn)
	if m.Type != wire.TypeTextResponse || m.Text != "echo: still here" {
		t.Errorf("follow-up reply = %+v", m)
	}
}

func TestWebSocketInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteMessage(gws.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readReply(t, conn)
	if m.Type != wire.TypeError {
		t.Errorf("type = %q, want %q", m.Type, wire.TypeError)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Count() != 0 {
		t.Fatalf("new registry count = %d", r.Count())
	}

	a := r.Add(nil)
	b := r.Add(nil)
	if r.Count() != 2 {
		t.Errorf("count = %d, want 2", r.Count())
	}
	if a == b {
		t.Error("connection ids not unique")
	}

	r.Remove(a)
	r.Remove("missing")
	r.Remove(a)
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
	r.Remove(b)
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func httptestRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
