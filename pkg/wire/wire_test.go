package wire

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	m, err := ParseClientMessage([]byte(`{"type":"text","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	if m.Type != TypeText || m.Text != "hello" {
		t.Errorf("parsed %+v", m)
	}

	if _, err := ParseClientMessage([]byte("{broken")); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestAudioMessageRoundTrip(t *testing.T) {
	payload := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x01}
	m := NewAudioMessage(payload)
	if m.Type != TypeAudio {
		t.Errorf("type = %q", m.Type)
	}

	got, err := m.DecodeAudio()
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("decoded %x, want %x", got, payload)
	}
}

func TestDecodeAudioRejectsEmpty(t *testing.T) {
	m := &ClientMessage{Type: TypeAudio}
	if _, err := m.DecodeAudio(); err == nil {
		t.Error("empty audio payload accepted")
	}
}

func TestDecodeAudioRejectsBadBase64(t *testing.T) {
	m := &ClientMessage{Type: TypeAudio, Audio: "!!! not base64 !!!"}
	if _, err := m.DecodeAudio(); err == nil {
		t.Error("invalid base64 accepted")
	}
}

func TestServerMessageOmitsEmptyAudio(t *testing.T) {
	data, err := json.Marshal(ErrorMessage("nope"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["audio"]; ok {
		t.Error("empty audio field serialized")
	}
	if raw["type"] != TypeError || raw["text"] != "nope" {
		t.Errorf("serialized %v", raw)
	}
}
