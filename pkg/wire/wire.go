// Package wire defines the JSON message shapes exchanged over the
// MindMate WebSocket endpoint. The server, the probe client, and the
// tests all share these types.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Client -> server message types.
const (
	TypeText  = "text"
	TypeAudio = "audio"
)

// Server -> client message types.
const (
	TypeTextResponse  = "text_response"
	TypeAudioResponse = "audio_response"
	TypeError         = "error"
)

// ClientMessage is one inbound utterance: either plain text or a
// base64-encoded audio payload.
type ClientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// ServerMessage is one outbound reply. Audio carries the synthesized
// clip as base64 when present.
type ServerMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"`
}

// ParseClientMessage decodes a raw WebSocket frame into a ClientMessage.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// DecodeAudio returns the raw audio bytes of an audio message.
func (m *ClientMessage) DecodeAudio() ([]byte, error) {
	if m.Audio == "" {
		return nil, fmt.Errorf("no audio payload")
	}
	data, err := base64.StdEncoding.DecodeString(m.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return data, nil
}

// NewTextMessage builds a client text message.
func NewTextMessage(text string) *ClientMessage {
	return &ClientMessage{Type: TypeText, Text: text}
}

// NewAudioMessage builds a client audio message from raw bytes.
func NewAudioMessage(audio []byte) *ClientMessage {
	return &ClientMessage{Type: TypeAudio, Audio: base64.StdEncoding.EncodeToString(audio)}
}

// ErrorMessage builds a server error reply.
func ErrorMessage(text string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Text: text}
}

// Response builds a server reply of the given type with text and an
// optional audio clip.
func Response(msgType, text string, audio []byte) *ServerMessage {
	m := &ServerMessage{Type: msgType, Text: text}
	if len(audio) > 0 {
		m.Audio = base64.StdEncoding.EncodeToString(audio)
	}
	return m
}
