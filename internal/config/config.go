package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call bridge.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	GeminiAPIKey       string
	GeminiWSBaseURL    string
	GeminiModel        string
	GeminiVoice        string
	GeminiLanguageCode string
	SystemInstruction  string

	GreetingDelay       time.Duration
	GreetingInstruction string
	SetupAckGrace       time.Duration
	DialAttempts        int

	InboundAudioMIMEType string
	PendingAudioMax      int
	MalformedFrameLimit  int
	MaxCallDuration      time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "callbridge"),
		AllowAnyOrigin:   false,
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		GeminiWSBaseURL:  envOrDefault("GEMINI_WS_BASE_URL", "wss://generativelanguage.googleapis.com"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "models/gemini-2.0-flash-live-001"),
		GeminiVoice:      envOrDefault("GEMINI_VOICE", "Aoede"),
		// Empty means let the model pick based on the conversation.
		GeminiLanguageCode: stringsTrimSpace("GEMINI_LANGUAGE_CODE"),
		SystemInstruction: envOrDefault("APP_SYSTEM_INSTRUCTION",
			"You are a friendly phone agent. Keep answers short; the caller hears them as speech."),
		GreetingInstruction: envOrDefault("APP_GREETING_INSTRUCTION",
			"Greet the caller briefly and ask how you can help."),
		// Telephony media streams carry 8kHz audio; the live API takes it as-is.
		InboundAudioMIMEType: envOrDefault("APP_INBOUND_AUDIO_MIME", "audio/pcm;rate=8000"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
		GreetingDelay:        1 * time.Second,
		SetupAckGrace:        3 * time.Second,
		DialAttempts:         3,
		PendingAudioMax:      64,
		MalformedFrameLimit:  10,
		MaxCallDuration:      4 * time.Hour,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GreetingDelay, err = durationFromEnv("APP_GREETING_DELAY", cfg.GreetingDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.SetupAckGrace, err = durationFromEnv("APP_SETUP_ACK_GRACE", cfg.SetupAckGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxCallDuration, err = durationFromEnv("APP_MAX_CALL_DURATION", cfg.MaxCallDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.DialAttempts, err = intFromEnv("APP_DIAL_ATTEMPTS", cfg.DialAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.PendingAudioMax, err = intFromEnv("APP_PENDING_AUDIO_MAX", cfg.PendingAudioMax)
	if err != nil {
		return Config{}, err
	}
	cfg.MalformedFrameLimit, err = intFromEnv("APP_MALFORMED_FRAME_LIMIT", cfg.MalformedFrameLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.GreetingDelay < 0 {
		return Config{}, fmt.Errorf("APP_GREETING_DELAY must be >= 0")
	}
	if cfg.SetupAckGrace <= 0 {
		return Config{}, fmt.Errorf("APP_SETUP_ACK_GRACE must be positive")
	}
	if cfg.DialAttempts <= 0 {
		return Config{}, fmt.Errorf("APP_DIAL_ATTEMPTS must be positive")
	}
	if cfg.PendingAudioMax <= 0 {
		return Config{}, fmt.Errorf("APP_PENDING_AUDIO_MAX must be positive")
	}
	if cfg.MalformedFrameLimit <= 0 {
		return Config{}, fmt.Errorf("APP_MALFORMED_FRAME_LIMIT must be positive")
	}
	if cfg.MaxCallDuration < 0 {
		return Config{}, fmt.Errorf("APP_MAX_CALL_DURATION must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s parse error: expected bool", key)
}
