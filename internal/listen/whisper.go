package listen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hbenali/friday/internal/logger"
)

// WhisperRecognizer is the offline fallback backend: it runs the
// whisper.cpp CLI against the captured WAV file. No network required.
type WhisperRecognizer struct {
	cliPath   string
	modelPath string
	language  string
	log       *logger.Logger
}

// NewWhisperRecognizer validates that the CLI and model exist.
func NewWhisperRecognizer(cliPath, modelPath, language string, log *logger.Logger) (*WhisperRecognizer, error) {
	resolved, err := exec.LookPath(cliPath)
	if err != nil {
		return nil, fmt.Errorf("whisper stt: %q not found in PATH: %w", cliPath, err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper stt: model not found: %s", modelPath)
	}
	// whisper.cpp wants a bare language code, not a BCP-47 tag.
	if i := strings.IndexByte(language, '-'); i > 0 {
		language = language[:i]
	}
	return &WhisperRecognizer{
		cliPath:   resolved,
		modelPath: modelPath,
		language:  language,
		log:       log,
	}, nil
}

// Name identifies this backend.
func (w *WhisperRecognizer) Name() string { return "whisper" }

// Recognize transcribes the WAV file.
func (w *WhisperRecognizer) Recognize(ctx context.Context, wavPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "friday-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)
	outPrefix := filepath.Join(tmpDir, "out")

	// Flag sets vary slightly across whisper.cpp builds; keep this set
	// conservative.
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", w.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 2<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(2<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper stt failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", fmt.Errorf("whisper stt: reading transcript: %w", err)
	}

	text := CleanTranscript(string(b))
	if text == "" {
		return "", ErrNoMatch
	}
	w.log.Debug("whisper stt: transcript %q", text)
	return text, nil
}

// envAnnotation matches whisper environmental annotations such as
// "(keyboard clicking)" or "[laughter]".
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s]*[\)\]]`)

// whisperHallucinations are full-string outputs whisper produces on
// silence or noise; a transcript equal to one of these is discarded.
var whisperHallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"bye!",
	"the end.",
}

// CleanTranscript normalizes a whisper transcript: collapses
// whitespace, strips [BLANK_AUDIO]-style artifacts, environmental
// annotations, timestamp prefixes, and known hallucinations.
func CleanTranscript(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	for _, junk := range []string{"[BLANK_AUDIO]", "[BLANK AUDIO]", "[Music]", "[silence]"} {
		s = strings.ReplaceAll(s, junk, "")
		s = strings.ReplaceAll(s, strings.ToLower(junk), "")
	}
	s = envAnnotation.ReplaceAllString(s, "")

	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	s = strings.TrimSpace(s)

	// Timestamp prefix like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 {
			s = strings.TrimSpace(s[idx+1:])
		}
	}

	lower := strings.ToLower(s)
	for _, h := range whisperHallucinations {
		if lower == h {
			return ""
		}
	}
	return s
}
