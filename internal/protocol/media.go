package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies telephony media-stream payload variants.
type EventType string

const (
	EventStart EventType = "start"
	EventMedia EventType = "media"
	EventStop  EventType = "stop"
)

var ErrUnsupportedEvent = errors.New("unsupported media stream event")

type mediaEnvelope struct {
	Event EventType `json:"event"`
}

// StartEvent opens a media stream: the call id correlates all later frames,
// the stream id addresses audio we send back.
type StartEvent struct {
	CallSID   string
	StreamSID string
}

// MediaEvent carries one opaque base64 audio payload from the caller.
type MediaEvent struct {
	Payload string
}

// StopEvent ends the media stream.
type StopEvent struct{}

type startFrame struct {
	Event EventType `json:"event"`
	Start struct {
		CallSID   string `json:"callSid"`
		StreamSID string `json:"streamSid"`
	} `json:"start"`
}

type mediaFrame struct {
	Event EventType `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMediaFrame struct {
	Event     EventType `json:"event"`
	StreamSID string    `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// ParseMediaMessage decodes one telephony frame into its tagged variant.
// Audio payloads stay base64; the bridge never inspects them.
func ParseMediaMessage(raw []byte) (any, error) {
	var env mediaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Event {
	case EventStart:
		var frame startFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, err
		}
		if frame.Start.CallSID == "" || frame.Start.StreamSID == "" {
			return nil, errors.New("invalid start event: missing callSid or streamSid")
		}
		return StartEvent{CallSID: frame.Start.CallSID, StreamSID: frame.Start.StreamSID}, nil
	case EventMedia:
		var frame mediaFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, err
		}
		if frame.Media.Payload == "" {
			return nil, errors.New("invalid media event: empty payload")
		}
		return MediaEvent{Payload: frame.Media.Payload}, nil
	case EventStop:
		return StopEvent{}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// EncodeMediaFrame builds the outbound audio frame addressed to streamSID.
func EncodeMediaFrame(streamSID, payload string) ([]byte, error) {
	frame := outboundMediaFrame{Event: EventMedia, StreamSID: streamSID}
	frame.Media.Payload = payload
	return json.Marshal(frame)
}
