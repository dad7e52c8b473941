// Package speech implements the assistant's speech output pipeline:
// a FIFO utterance queue drained by a single worker that renders text
// through a synthesis backend (with a content-addressed artifact cache)
// and plays it through an ordered chain of audio sinks.
package speech

import (
	"context"
	"time"
)

// Default voice for the Azure synthesis backend.
const DefaultVoice = "en-US-AvaNeural"

// Audio format requested from Azure and expected by the native player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Playback parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// VoiceParams carries the rendering knobs for one utterance. An empty
// Voice or non-positive Rate means "use the engine default"; Volume
// uses a negative value for that, so an explicit 0 still mutes.
type VoiceParams struct {
	Voice  string
	Rate   int     // words per minute
	Volume float64 // 0.0–1.0, negative for the engine default
}

// Utterance is a queued speech request. Owned by the engine queue from
// Speak until playback completes or StopSpeaking discards it.
type Utterance struct {
	Text     string
	Params   VoiceParams
	QueuedAt time.Time
}

// Synthesizer renders text into WAV bytes.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, params VoiceParams) ([]byte, error)
}

// Sink plays a rendered audio artifact. Play blocks for the duration of
// playback; Stop interrupts the active playback, if any.
type Sink interface {
	Name() string
	Play(path string) error
	Stop()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
