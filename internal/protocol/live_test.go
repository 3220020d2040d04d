package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildSetup(t *testing.T) {
	raw, err := BuildSetup(SetupConfig{
		Model:             "models/gemini-2.0-flash-live-001",
		VoiceName:         "Aoede",
		LanguageCode:      "en-US",
		SystemInstruction: "You are a phone agent.",
	})
	if err != nil {
		t.Fatalf("BuildSetup() error = %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal setup frame: %v", err)
	}
	setup, ok := frame["setup"].(map[string]any)
	if !ok {
		t.Fatalf("setup key missing: %s", raw)
	}
	if setup["model"] != "models/gemini-2.0-flash-live-001" {
		t.Fatalf("model = %v", setup["model"])
	}
	if !strings.Contains(string(raw), `"voice_name":"Aoede"`) {
		t.Fatalf("voice name missing: %s", raw)
	}
	if !strings.Contains(string(raw), `"language_code":"en-US"`) {
		t.Fatalf("language code missing: %s", raw)
	}
	if !strings.Contains(string(raw), "You are a phone agent.") {
		t.Fatalf("system instruction missing: %s", raw)
	}
}

func TestBuildTextTurn(t *testing.T) {
	raw, err := BuildTextTurn("Greet the caller.")
	if err != nil {
		t.Fatalf("BuildTextTurn() error = %v", err)
	}

	var frame liveClientContentFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal text turn: %v", err)
	}
	if !frame.ClientContent.TurnComplete {
		t.Fatalf("turn_complete = false, want true")
	}
	if len(frame.ClientContent.Turns) != 1 || frame.ClientContent.Turns[0].Role != "user" {
		t.Fatalf("unexpected turns: %+v", frame.ClientContent.Turns)
	}
	if frame.ClientContent.Turns[0].Parts[0].Text != "Greet the caller." {
		t.Fatalf("unexpected text: %+v", frame.ClientContent.Turns[0].Parts)
	}
}

func TestBuildAudioChunk(t *testing.T) {
	raw, err := BuildAudioChunk("audio/pcm;rate=8000", "AAAA")
	if err != nil {
		t.Fatalf("BuildAudioChunk() error = %v", err)
	}

	var frame liveRealtimeInputFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal audio chunk: %v", err)
	}
	if len(frame.RealtimeInput.MediaChunks) != 1 {
		t.Fatalf("media_chunks len = %d, want 1", len(frame.RealtimeInput.MediaChunks))
	}
	chunk := frame.RealtimeInput.MediaChunks[0]
	if chunk.MIMEType != "audio/pcm;rate=8000" || chunk.Data != "AAAA" {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
}

func TestParseLiveMessageSetupComplete(t *testing.T) {
	msg, err := ParseLiveMessage([]byte(`{"setupComplete":{}}`))
	if err != nil {
		t.Fatalf("ParseLiveMessage() error = %v", err)
	}
	if _, ok := msg.(SetupComplete); !ok {
		t.Fatalf("message type = %T, want SetupComplete", msg)
	}
}

func TestParseLiveMessageInlineAudio(t *testing.T) {
	raw := []byte(`{"server_content":{"model_turn":{"parts":[{"text":"ignored"},{"inline_data":{"mime_type":"audio/pcm;rate=24000","data":"BBBB"}}]}}}`)
	msg, err := ParseLiveMessage(raw)
	if err != nil {
		t.Fatalf("ParseLiveMessage() error = %v", err)
	}

	audio, ok := msg.(InlineAudio)
	if !ok {
		t.Fatalf("message type = %T, want InlineAudio", msg)
	}
	if audio.Data != "BBBB" || audio.MIMEType != "audio/pcm;rate=24000" {
		t.Fatalf("unexpected inline audio: %+v", audio)
	}
}

func TestParseLiveMessageUnrecognizedIsUnhandled(t *testing.T) {
	cases := []string{
		`{"server_content":{"turn_complete":true}}`,
		`{"server_content":{"model_turn":{"parts":[{"text":"hello"}]}}}`,
		`{"usage_metadata":{"total_tokens":12}}`,
		`{}`,
	}
	for _, raw := range cases {
		msg, err := ParseLiveMessage([]byte(raw))
		if err != nil {
			t.Fatalf("ParseLiveMessage(%q) error = %v", raw, err)
		}
		if _, ok := msg.(Unhandled); !ok {
			t.Fatalf("ParseLiveMessage(%q) = %T, want Unhandled", raw, msg)
		}
	}
}

func TestParseLiveMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseLiveMessage([]byte(`{{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
