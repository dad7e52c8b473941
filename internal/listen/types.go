// Package listen implements the audio input side of the assistant:
// microphone capture with ambient-noise calibration and energy-based
// endpointing, a primary/fallback speech recognition chain, and
// wake-word gating of full listening.
package listen

import (
	"errors"
	"time"
)

// Outcome tags a recognition attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeNoMatch      Outcome = "no-match"
	OutcomeBackendError Outcome = "backend-error"
	// OutcomeCanceled is returned when Stop interrupts an in-flight listen.
	OutcomeCanceled Outcome = "canceled"
)

// Result is the outcome of one listen cycle. Text is empty unless the
// outcome is OutcomeSuccess.
type Result struct {
	Text    string
	Backend string // recognizer that produced the text, empty on failure
	Outcome Outcome
	Detail  string // human-readable diagnostic on failure
}

// Request bounds a single listen attempt. Immutable; built per attempt.
type Request struct {
	Timeout         time.Duration // max wait for speech to begin
	PhraseTimeLimit time.Duration // max length of a captured phrase
	CalibrateFor    time.Duration // ambient sampling window, 0 skips calibration
}

// Sentinel errors.
var (
	// ErrNoAudioDevice means no usable capture device exists. Fatal to
	// the controller at construction time, never raised mid-session.
	ErrNoAudioDevice = errors.New("no usable audio input device")

	// ErrNoMatch means a recognizer processed the audio but found no
	// intelligible speech.
	ErrNoMatch = errors.New("speech not recognized")
)
