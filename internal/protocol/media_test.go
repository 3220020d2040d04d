package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMediaMessageStart(t *testing.T) {
	raw := []byte(`{"event":"start","start":{"callSid":"CA1","streamSid":"ST1"}}`)
	msg, err := ParseMediaMessage(raw)
	if err != nil {
		t.Fatalf("ParseMediaMessage() error = %v", err)
	}

	start, ok := msg.(StartEvent)
	if !ok {
		t.Fatalf("message type = %T, want StartEvent", msg)
	}
	if start.CallSID != "CA1" || start.StreamSID != "ST1" {
		t.Fatalf("unexpected start event: %+v", start)
	}
}

func TestParseMediaMessageMedia(t *testing.T) {
	raw := []byte(`{"event":"media","media":{"payload":"AAAA"}}`)
	msg, err := ParseMediaMessage(raw)
	if err != nil {
		t.Fatalf("ParseMediaMessage() error = %v", err)
	}

	media, ok := msg.(MediaEvent)
	if !ok {
		t.Fatalf("message type = %T, want MediaEvent", msg)
	}
	if media.Payload != "AAAA" {
		t.Fatalf("Payload = %q, want %q", media.Payload, "AAAA")
	}
}

func TestParseMediaMessageStop(t *testing.T) {
	msg, err := ParseMediaMessage([]byte(`{"event":"stop"}`))
	if err != nil {
		t.Fatalf("ParseMediaMessage() error = %v", err)
	}
	if _, ok := msg.(StopEvent); !ok {
		t.Fatalf("message type = %T, want StopEvent", msg)
	}
}

func TestParseMediaMessageRejectsUnknownEvent(t *testing.T) {
	_, err := ParseMediaMessage([]byte(`{"event":"mark"}`))
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("error = %v, want ErrUnsupportedEvent", err)
	}
}

func TestParseMediaMessageRejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"event":"start","start":{"callSid":"","streamSid":""}}`,
		`{"event":"media","media":{"payload":""}}`,
	}
	for _, raw := range cases {
		if _, err := ParseMediaMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseMediaMessage(%q) expected error", raw)
		}
	}
}

func TestEncodeMediaFrame(t *testing.T) {
	raw, err := EncodeMediaFrame("ST1", "BBBB")
	if err != nil {
		t.Fatalf("EncodeMediaFrame() error = %v", err)
	}

	var frame struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal encoded frame: %v", err)
	}
	if frame.Event != "media" || frame.StreamSID != "ST1" || frame.Media.Payload != "BBBB" {
		t.Fatalf("unexpected frame: %s", raw)
	}
}

func BenchmarkParseMediaMessageMedia(b *testing.B) {
	raw := []byte(`{"event":"media","media":{"payload":"AQIDBAUGBwgJCgsMDQ4P"}}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseMediaMessage(raw)
		if err != nil {
			b.Fatalf("ParseMediaMessage() error = %v", err)
		}
		if _, ok := msg.(MediaEvent); !ok {
			b.Fatalf("message type = %T, want MediaEvent", msg)
		}
	}
}
