package util

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// execTimeout bounds voice-launched shell commands so a hung command
// can't wedge the assistant loop.
const execTimeout = 10 * time.Second

// OpenApplication launches an application by name using the
// platform's launcher conventions.
func OpenApplication(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("open application: empty name")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-a", name)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", name)
	default:
		cmd = exec.Command(name)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open application %q: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// ExecuteCommand runs a shell command and returns its output as
// speakable text. Stdout wins over stderr; an empty result becomes a
// confirmation phrase. The timeout and the error-as-text contract keep
// this safe to wire straight into a voice response.
func ExecuteCommand(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "Command timed out"
	}
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
				return msg
			}
		}
		return fmt.Sprintf("Command execution failed: %v", err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return msg
	}
	return "Command executed successfully"
}
