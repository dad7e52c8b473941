package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/hbenali/friday/internal/logger"
)

// espeakBins are tried in order when locating the local synthesizer.
var espeakBins = []string{"espeak-ng", "espeak"}

// ESpeak is the offline synthesis backend of last resort. It shells out
// to espeak-ng (or espeak), which needs no network and no audio artifact:
// Say speaks directly through the system audio device, Synthesize renders
// WAV bytes via --stdout for callers that want an artifact.
type ESpeak struct {
	bin string
	log *logger.Logger

	mu     sync.Mutex
	active *exec.Cmd // currently speaking process, nil when idle
}

// NewESpeak locates an espeak binary on PATH. Returns an error when none
// is installed; the engine then runs without an offline fallback.
func NewESpeak(log *logger.Logger) (*ESpeak, error) {
	for _, bin := range espeakBins {
		if path, err := exec.LookPath(bin); err == nil {
			log.Debug("espeak: using %s", path)
			return &ESpeak{bin: path, log: log}, nil
		}
	}
	return nil, fmt.Errorf("espeak: no binary found (tried %v)", espeakBins)
}

// Name identifies this backend.
func (e *ESpeak) Name() string { return "espeak" }

// Synthesize renders text to WAV bytes.
func (e *ESpeak) Synthesize(ctx context.Context, text string, params VoiceParams) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.bin, e.args(params, "--stdout", text)...)
	data, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("espeak synthesis failed: %w", err)
	}
	return data, nil
}

// Say speaks text directly through the system audio device, blocking
// until playback finishes or Stop kills the process.
func (e *ESpeak) Say(text string, params VoiceParams) error {
	cmd := exec.Command(e.bin, e.args(params, text)...)

	e.mu.Lock()
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("espeak start failed: %w", err)
	}
	e.active = cmd
	e.mu.Unlock()

	err := cmd.Wait()

	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()

	// A kill from Stop surfaces as an exit error; that is an interrupt,
	// not a playback failure.
	if err != nil && cmd.ProcessState != nil && !cmd.ProcessState.Exited() {
		return nil
	}
	return err
}

// Stop kills the active espeak process, if any.
func (e *ESpeak) Stop() {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != nil && active.Process != nil {
		_ = active.Process.Kill()
		e.log.Debug("espeak: interrupted")
	}
}

// args maps voice params onto espeak flags. espeak amplitude runs 0-200.
func (e *ESpeak) args(params VoiceParams, rest ...string) []string {
	args := make([]string, 0, 4+len(rest))
	if params.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(params.Rate))
	}
	volume := params.Volume
	if volume < 0 {
		volume = 1
	}
	args = append(args, "-a", strconv.Itoa(int(volume*200)))
	return append(args, rest...)
}
