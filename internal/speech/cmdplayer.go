package speech

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/hbenali/friday/internal/logger"
)

// CmdPlayer is the secondary sink: it plays WAV artifacts by shelling
// out to whatever command-line player the host provides. Used when the
// native audio context could not be opened or a native playback fails.
type CmdPlayer struct {
	bin  string
	args []string // flags placed before the file path
	log  *logger.Logger

	mu     sync.Mutex
	active *exec.Cmd
}

// playerCandidates lists known CLI players per platform, tried in order.
func playerCandidates() [][]string {
	switch runtime.GOOS {
	case "darwin":
		return [][]string{{"afplay"}}
	case "windows":
		return [][]string{{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}}
	default:
		return [][]string{
			{"aplay", "-q"},
			{"paplay"},
			{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
		}
	}
}

// NewCmdPlayer locates a usable CLI player on PATH.
func NewCmdPlayer(log *logger.Logger) (*CmdPlayer, error) {
	for _, cand := range playerCandidates() {
		if path, err := exec.LookPath(cand[0]); err == nil {
			log.Debug("cmdplayer: using %s", path)
			return &CmdPlayer{bin: path, args: cand[1:], log: log}, nil
		}
	}
	return nil, fmt.Errorf("cmdplayer: no command-line audio player found")
}

// Name identifies this sink.
func (p *CmdPlayer) Name() string { return "cmd" }

// Play plays the artifact at path. Blocks until the player exits or
// Stop kills it.
func (p *CmdPlayer) Play(path string) error {
	cmd := exec.Command(p.bin, append(append([]string{}, p.args...), path)...)

	p.mu.Lock()
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("cmdplayer start failed: %w", err)
	}
	p.active = cmd
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	// Killed by Stop: an interrupt, not a failure.
	if err != nil && cmd.ProcessState != nil && !cmd.ProcessState.Exited() {
		return nil
	}
	return err
}

// Stop kills the active player process, if any.
func (p *CmdPlayer) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil && active.Process != nil {
		_ = active.Process.Kill()
		p.log.Debug("cmdplayer: interrupted")
	}
}
