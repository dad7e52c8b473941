package config

import (
	"strings"
	"testing"
	"time"
)

// clearFridayEnv blanks every variable Load reads so ambient shell
// state cannot leak into the table cases.
func clearFridayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FRIDAY_VOICE", "FRIDAY_CACHE_DIR", "FRIDAY_VOICE_SPEED",
		"FRIDAY_VOICE_VOLUME", "FRIDAY_MIC_SAMPLE_RATE",
		"FRIDAY_ENERGY_THRESHOLD", "FRIDAY_PAUSE_THRESHOLD",
		"FRIDAY_NON_SPEAKING_DURATION", "FRIDAY_CALIBRATE_DURATION",
		"FRIDAY_STT_TIMEOUT", "FRIDAY_PHRASE_TIME_LIMIT",
		"FRIDAY_SKIP_CALIBRATION", "FRIDAY_DISK_CACHE",
		"FRIDAY_WHISPER_CLI", "FRIDAY_WHISPER_MODEL", "FRIDAY_LANGUAGE",
		"FRIDAY_WAKE_WORD", "FRIDAY_WAKE_BACKEND", "FRIDAY_WAKE_MODEL",
		"FRIDAY_MELSPEC_MODEL", "FRIDAY_EMBEDDING_MODEL", "FRIDAY_ONNX_LIB",
		"FRIDAY_WAKE_THRESHOLD", "FRIDAY_WAKE_CHUNK",
		"AZURE_SPEECH_KEY", "AZURE_SPEECH_REGION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearFridayEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.VoiceSpeed != 120 {
		t.Errorf("VoiceSpeed = %d, want 120", cfg.VoiceSpeed)
	}
	if cfg.VoiceVolume != 0.85 {
		t.Errorf("VoiceVolume = %v, want 0.85", cfg.VoiceVolume)
	}
	if cfg.VoiceName != "en-US-AvaNeural" {
		t.Errorf("VoiceName = %q", cfg.VoiceName)
	}
	if cfg.MicSampleRate != 16000 {
		t.Errorf("MicSampleRate = %d, want 16000", cfg.MicSampleRate)
	}
	if cfg.PauseThreshold != 450*time.Millisecond {
		t.Errorf("PauseThreshold = %s", cfg.PauseThreshold)
	}
	if cfg.NonSpeakingDur != 300*time.Millisecond {
		t.Errorf("NonSpeakingDur = %s", cfg.NonSpeakingDur)
	}
	if cfg.WakeWord != "friday" || cfg.WakeBackend != "process" {
		t.Errorf("wake defaults = %q/%q", cfg.WakeWord, cfg.WakeBackend)
	}
	if !cfg.DiskCache {
		t.Error("DiskCache should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearFridayEnv(t)
	t.Setenv("FRIDAY_VOICE_SPEED", "150")
	t.Setenv("FRIDAY_VOICE_VOLUME", "0.5")
	t.Setenv("FRIDAY_PAUSE_THRESHOLD", "800ms")
	t.Setenv("FRIDAY_WAKE_BACKEND", "embedded")
	t.Setenv("FRIDAY_DISK_CACHE", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VoiceSpeed != 150 || cfg.VoiceVolume != 0.5 {
		t.Errorf("voice overrides not applied: %d/%v", cfg.VoiceSpeed, cfg.VoiceVolume)
	}
	if cfg.PauseThreshold != 800*time.Millisecond {
		t.Errorf("PauseThreshold = %s, want 800ms", cfg.PauseThreshold)
	}
	if cfg.WakeBackend != "embedded" {
		t.Errorf("WakeBackend = %q", cfg.WakeBackend)
	}
	if cfg.DiskCache {
		t.Error("DiskCache override not applied")
	}
}

func TestLoadClampsNonSpeakingDuration(t *testing.T) {
	clearFridayEnv(t)
	t.Setenv("FRIDAY_PAUSE_THRESHOLD", "200ms")
	t.Setenv("FRIDAY_NON_SPEAKING_DURATION", "900ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NonSpeakingDur != cfg.PauseThreshold {
		t.Fatalf("NonSpeakingDur = %s, want clamp to %s", cfg.NonSpeakingDur, cfg.PauseThreshold)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		frag  string // expected substring of the error
	}{
		{"bad int", "FRIDAY_VOICE_SPEED", "fast", "FRIDAY_VOICE_SPEED parse error"},
		{"bad float", "FRIDAY_VOICE_VOLUME", "loud", "FRIDAY_VOICE_VOLUME parse error"},
		{"bad duration", "FRIDAY_PAUSE_THRESHOLD", "half a second", "FRIDAY_PAUSE_THRESHOLD parse error"},
		{"bad bool", "FRIDAY_SKIP_CALIBRATION", "maybe", "FRIDAY_SKIP_CALIBRATION parse error"},
		{"volume too high", "FRIDAY_VOICE_VOLUME", "1.5", "within [0,1]"},
		{"volume negative", "FRIDAY_VOICE_VOLUME", "-0.1", "within [0,1]"},
		{"zero speed", "FRIDAY_VOICE_SPEED", "0", "must be positive"},
		{"negative timeout", "FRIDAY_STT_TIMEOUT", "-3s", "must be positive"},
		{"unknown wake backend", "FRIDAY_WAKE_BACKEND", "cloud", "FRIDAY_WAKE_BACKEND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearFridayEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Fatalf("error %q does not mention %q", err, tc.frag)
			}
		})
	}
}
