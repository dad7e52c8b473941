// Package wakeword provides keyword detection that gates the assistant
// while it idles. Two backends are available: a lightweight process
// backend that spots the keyword in short whisper transcriptions, and
// an embedded backend running the openWakeWord ONNX pipeline
// (melspectrogram → embedding → wakeword) in-process.
package wakeword

import (
	"context"
	"strings"
)

// Detector blocks in Detect until the wake word is heard.
type Detector interface {
	// Detect returns (true, nil) on detection, (false, nil) when the
	// context is cancelled, and (false, err) if the backend fails.
	Detect(ctx context.Context) (bool, error)
}

// MatchKeyword reports whether text contains the keyword, ignoring
// case and surrounding punctuation. Whisper likes to capitalize and
// append periods, so "Friday." still matches "friday".
func MatchKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	clean := strings.ToLower(strings.TrimSpace(text))
	clean = strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, clean)
	kw := strings.ToLower(keyword)
	for _, word := range strings.Fields(clean) {
		if word == kw {
			return true
		}
	}
	// Multi-word keywords won't survive Fields; fall back to substring.
	return strings.Contains(kw, " ") && strings.Contains(clean, kw)
}
