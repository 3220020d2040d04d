package protocol

import (
	"encoding/json"
	"fmt"
)

// SetupConfig declares the live-generation session parameters sent in the
// setup frame before any audio flows.
type SetupConfig struct {
	Model             string
	VoiceName         string
	LanguageCode      string
	SystemInstruction string
}

// SetupComplete acknowledges the setup frame; the link is usable after it.
type SetupComplete struct{}

// InlineAudio is synthesized audio embedded in a server content frame.
type InlineAudio struct {
	MIMEType string
	Data     string
}

// Unhandled covers recognized-but-unused live frame shapes. They are counted
// and ignored, never treated as errors.
type Unhandled struct{}

type liveInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type livePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *liveInlineData `json:"inline_data,omitempty"`
}

type liveTurn struct {
	Role  string     `json:"role"`
	Parts []livePart `json:"parts"`
}

type liveContent struct {
	Parts []livePart `json:"parts"`
}

type liveVoiceConfig struct {
	PrebuiltVoiceConfig struct {
		VoiceName string `json:"voice_name"`
	} `json:"prebuilt_voice_config"`
}

type liveSpeechConfig struct {
	VoiceConfig  liveVoiceConfig `json:"voice_config"`
	LanguageCode string          `json:"language_code,omitempty"`
}

type liveGenerationConfig struct {
	ResponseModalities []string          `json:"response_modalities"`
	SpeechConfig       *liveSpeechConfig `json:"speech_config,omitempty"`
}

type liveSetupFrame struct {
	Setup struct {
		Model             string               `json:"model"`
		GenerationConfig  liveGenerationConfig `json:"generation_config"`
		SystemInstruction *liveContent         `json:"system_instruction,omitempty"`
	} `json:"setup"`
}

type liveClientContentFrame struct {
	ClientContent struct {
		Turns        []liveTurn `json:"turns"`
		TurnComplete bool       `json:"turn_complete"`
	} `json:"client_content"`
}

type liveRealtimeInputFrame struct {
	RealtimeInput struct {
		MediaChunks []liveInlineData `json:"media_chunks"`
	} `json:"realtime_input"`
}

type liveServerFrame struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		ModelTurn *liveContent `json:"model_turn"`
	} `json:"server_content,omitempty"`
}

// BuildSetup serializes the session setup frame.
func BuildSetup(cfg SetupConfig) ([]byte, error) {
	var frame liveSetupFrame
	frame.Setup.Model = cfg.Model
	frame.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if cfg.VoiceName != "" || cfg.LanguageCode != "" {
		sc := &liveSpeechConfig{LanguageCode: cfg.LanguageCode}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.VoiceName
		frame.Setup.GenerationConfig.SpeechConfig = sc
	}
	if cfg.SystemInstruction != "" {
		frame.Setup.SystemInstruction = &liveContent{Parts: []livePart{{Text: cfg.SystemInstruction}}}
	}
	return json.Marshal(frame)
}

// BuildTextTurn serializes a synthetic user turn, used for the greeting.
func BuildTextTurn(text string) ([]byte, error) {
	var frame liveClientContentFrame
	frame.ClientContent.Turns = []liveTurn{{Role: "user", Parts: []livePart{{Text: text}}}}
	frame.ClientContent.TurnComplete = true
	return json.Marshal(frame)
}

// BuildAudioChunk serializes one caller audio payload for the live stream.
func BuildAudioChunk(mimeType, data string) ([]byte, error) {
	var frame liveRealtimeInputFrame
	frame.RealtimeInput.MediaChunks = []liveInlineData{{MIMEType: mimeType, Data: data}}
	return json.Marshal(frame)
}

// ParseLiveMessage decodes one live frame. Shapes the bridge does not relay
// map to Unhandled; only invalid JSON is an error.
func ParseLiveMessage(raw []byte) (any, error) {
	var frame liveServerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("invalid live frame: %w", err)
	}
	if frame.SetupComplete != nil {
		return SetupComplete{}, nil
	}
	if frame.ServerContent != nil && frame.ServerContent.ModelTurn != nil {
		for _, part := range frame.ServerContent.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return InlineAudio{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, nil
			}
		}
	}
	return Unhandled{}, nil
}
