package wakeword

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hbenali/friday/internal/listen"
	"github.com/hbenali/friday/internal/logger"
)

// ProcessOption configures the Process detector.
type ProcessOption func(*Process)

// WithChunkLength sets how long each probe recording lasts. Shorter
// chunks respond faster but burn more CPU on transcription.
func WithChunkLength(d time.Duration) ProcessOption {
	return func(p *Process) { p.chunkLen = d }
}

// WithProcessTempDir sets the directory for probe WAV files.
func WithProcessTempDir(dir string) ProcessOption {
	return func(p *Process) { p.tempDir = dir }
}

// Process detects the wake word by recording short clips and spotting
// the keyword in their whisper transcriptions. Needs no model training
// for custom keywords, at the cost of chunk-length latency.
type Process struct {
	keyword    string
	whisperBin string
	modelPath  string
	tempDir    string
	chunkLen   time.Duration
	log        *logger.Logger
}

// NewProcess builds the transcription-based detector. The whisper
// binary must be on PATH (or an absolute path); a missing binary is an
// error here rather than on the first Detect.
func NewProcess(keyword, whisperBin, modelPath string, log *logger.Logger, opts ...ProcessOption) (*Process, error) {
	if _, err := exec.LookPath(whisperBin); err != nil {
		return nil, fmt.Errorf("wakeword: whisper binary %q: %w", whisperBin, err)
	}
	p := &Process{
		keyword:    keyword,
		whisperBin: whisperBin,
		modelPath:  modelPath,
		tempDir:    ".friday-wake",
		chunkLen:   3 * time.Second,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Detect records probe chunks until one of them contains the keyword.
func (p *Process) Detect(ctx context.Context) (bool, error) {
	p.log.Debug("wakeword/process: probing for %q (chunk=%s)", p.keyword, p.chunkLen)
	for {
		select {
		case <-ctx.Done():
			return false, nil
		default:
		}

		text, err := p.recordChunk(ctx)
		if err != nil {
			return false, err
		}
		text = listen.CleanTranscript(text)
		if text == "" {
			continue
		}
		p.log.Debug("wakeword/process: heard %q", text)
		if MatchKeyword(text, p.keyword) {
			p.log.Info("wakeword: detected %q in %q", p.keyword, text)
			return true, nil
		}
	}
}

// recordChunk does one record-and-transcribe cycle.
func (p *Process) recordChunk(ctx context.Context) (string, error) {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := p.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(
		p.whisperBin,
		p.modelPath,
		p.tempDir,
		"wav",
		callback,
		verbose,
	)
	if err != nil {
		return "", fmt.Errorf("wakeword: transcriber init: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("wakeword: recording start: %w", err)
	}

	select {
	case <-time.After(p.chunkLen):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return "", nil
	}

	t.Stop()
	wg.Wait()
	return result, nil
}
