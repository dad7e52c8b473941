// Package config loads runtime settings for the assistant from the
// environment. A .env file (if present) is loaded by the caller before
// Load runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable used by the voice pipeline.
type Config struct {
	// Speech output.
	VoiceSpeed  int     // TTS rate in words per minute
	VoiceVolume float64 // 0.0–1.0
	VoiceName   string
	CacheDir    string // rendered-audio artifact directory
	DiskCache   bool   // persist new cache entries to disk

	// Azure synthesis backend.
	AzureSpeechKey    string
	AzureSpeechRegion string

	// Audio input.
	MicSampleRate      int
	EnergyThreshold    float64       // initial VAD threshold, refined by calibration
	PauseThreshold     time.Duration // silence that ends a phrase
	NonSpeakingDur     time.Duration // leading/trailing silence kept around a phrase
	CalibrateDuration  time.Duration // ambient noise sampling window
	STTTimeout         time.Duration // max wait for speech to start
	PhraseTimeLimit    time.Duration // max length of a captured phrase
	SkipCalibration    bool
	WhisperCLI         string
	WhisperModelPath   string
	RecognizerLanguage string

	// Wake word.
	WakeWord        string
	WakeBackend     string // "process" or "embedded"
	WakewordModel   string // embedded backend ONNX model
	MelspecModel    string
	EmbeddingModel  string
	OnnxLibPath     string
	WakeThreshold   float64
	WakeChunkLength time.Duration // process backend probe duration
}

// Load reads environment variables and applies defaults. Returns an error
// for values that cannot hold (negative durations, volume out of range).
func Load() (Config, error) {
	cfg := Config{
		VoiceSpeed:         120,
		VoiceVolume:        0.85,
		VoiceName:          envOrDefault("FRIDAY_VOICE", "en-US-AvaNeural"),
		CacheDir:           envOrDefault("FRIDAY_CACHE_DIR", ".friday-cache"),
		DiskCache:          true,
		AzureSpeechKey:     strings.TrimSpace(os.Getenv("AZURE_SPEECH_KEY")),
		AzureSpeechRegion:  strings.TrimSpace(os.Getenv("AZURE_SPEECH_REGION")),
		MicSampleRate:      16000,
		EnergyThreshold:    150,
		PauseThreshold:     450 * time.Millisecond,
		NonSpeakingDur:     300 * time.Millisecond,
		CalibrateDuration:  500 * time.Millisecond,
		STTTimeout:         5 * time.Second,
		PhraseTimeLimit:    5 * time.Second,
		WhisperCLI:         envOrDefault("FRIDAY_WHISPER_CLI", "whisper-cli"),
		WhisperModelPath:   envOrDefault("FRIDAY_WHISPER_MODEL", "bin/ggml-base.bin"),
		RecognizerLanguage: envOrDefault("FRIDAY_LANGUAGE", "en-US"),
		WakeWord:           envOrDefault("FRIDAY_WAKE_WORD", "friday"),
		WakeBackend:        envOrDefault("FRIDAY_WAKE_BACKEND", "process"),
		WakewordModel:      envOrDefault("FRIDAY_WAKE_MODEL", "models/friday.onnx"),
		MelspecModel:       envOrDefault("FRIDAY_MELSPEC_MODEL", "bin/melspectrogram.onnx"),
		EmbeddingModel:     envOrDefault("FRIDAY_EMBEDDING_MODEL", "bin/embedding_model.onnx"),
		OnnxLibPath:        envOrDefault("FRIDAY_ONNX_LIB", "bin/libonnxruntime.so"),
		WakeThreshold:      0.3,
		WakeChunkLength:    3 * time.Second,
	}

	var err error
	if cfg.VoiceSpeed, err = intFromEnv("FRIDAY_VOICE_SPEED", cfg.VoiceSpeed); err != nil {
		return Config{}, err
	}
	if cfg.VoiceVolume, err = floatFromEnv("FRIDAY_VOICE_VOLUME", cfg.VoiceVolume); err != nil {
		return Config{}, err
	}
	if cfg.MicSampleRate, err = intFromEnv("FRIDAY_MIC_SAMPLE_RATE", cfg.MicSampleRate); err != nil {
		return Config{}, err
	}
	if cfg.EnergyThreshold, err = floatFromEnv("FRIDAY_ENERGY_THRESHOLD", cfg.EnergyThreshold); err != nil {
		return Config{}, err
	}
	if cfg.PauseThreshold, err = durationFromEnv("FRIDAY_PAUSE_THRESHOLD", cfg.PauseThreshold); err != nil {
		return Config{}, err
	}
	if cfg.NonSpeakingDur, err = durationFromEnv("FRIDAY_NON_SPEAKING_DURATION", cfg.NonSpeakingDur); err != nil {
		return Config{}, err
	}
	if cfg.CalibrateDuration, err = durationFromEnv("FRIDAY_CALIBRATE_DURATION", cfg.CalibrateDuration); err != nil {
		return Config{}, err
	}
	if cfg.STTTimeout, err = durationFromEnv("FRIDAY_STT_TIMEOUT", cfg.STTTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PhraseTimeLimit, err = durationFromEnv("FRIDAY_PHRASE_TIME_LIMIT", cfg.PhraseTimeLimit); err != nil {
		return Config{}, err
	}
	if cfg.SkipCalibration, err = boolFromEnv("FRIDAY_SKIP_CALIBRATION", cfg.SkipCalibration); err != nil {
		return Config{}, err
	}
	if cfg.DiskCache, err = boolFromEnv("FRIDAY_DISK_CACHE", cfg.DiskCache); err != nil {
		return Config{}, err
	}
	if cfg.WakeThreshold, err = floatFromEnv("FRIDAY_WAKE_THRESHOLD", cfg.WakeThreshold); err != nil {
		return Config{}, err
	}
	if cfg.WakeChunkLength, err = durationFromEnv("FRIDAY_WAKE_CHUNK", cfg.WakeChunkLength); err != nil {
		return Config{}, err
	}

	if cfg.VoiceVolume < 0 || cfg.VoiceVolume > 1 {
		return Config{}, fmt.Errorf("FRIDAY_VOICE_VOLUME must be within [0,1], got %v", cfg.VoiceVolume)
	}
	if cfg.VoiceSpeed <= 0 {
		return Config{}, fmt.Errorf("FRIDAY_VOICE_SPEED must be positive")
	}
	if cfg.MicSampleRate <= 0 {
		return Config{}, fmt.Errorf("FRIDAY_MIC_SAMPLE_RATE must be positive")
	}
	for name, d := range map[string]time.Duration{
		"FRIDAY_PAUSE_THRESHOLD":       cfg.PauseThreshold,
		"FRIDAY_NON_SPEAKING_DURATION": cfg.NonSpeakingDur,
		"FRIDAY_STT_TIMEOUT":           cfg.STTTimeout,
		"FRIDAY_PHRASE_TIME_LIMIT":     cfg.PhraseTimeLimit,
	} {
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.WakeWord == "" {
		return Config{}, fmt.Errorf("FRIDAY_WAKE_WORD must not be empty")
	}
	switch cfg.WakeBackend {
	case "process", "embedded":
	default:
		return Config{}, fmt.Errorf("FRIDAY_WAKE_BACKEND must be \"process\" or \"embedded\", got %q", cfg.WakeBackend)
	}

	// The recognizer cannot keep more non-speaking audio than the pause
	// that ends a phrase. Clamp rather than reject: a too-large value is
	// a tuning mistake, not a fatal misconfiguration.
	if cfg.NonSpeakingDur > cfg.PauseThreshold {
		cfg.NonSpeakingDur = cfg.PauseThreshold
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool, got %q", key, v)
	}
}
