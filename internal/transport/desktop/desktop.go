// Package desktop delivers notifications through the native desktop
// notification command: notify-send on Linux/BSD, osascript on macOS.
//
// There is no portable notification daemon API to speak directly, so the
// adapter shells out to the platform tool. Availability of that tool doubles
// as the permission check.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	logx "nudgeloop/pkg/logx"

	"nudgeloop/internal/transport"
)

// ErrNoNotifier indicates no notification command is available on this system.
var ErrNoNotifier = errors.New("desktop: no notification command found")

type Config struct {
	// Command overrides the auto-detected notifier binary (mainly for tests).
	Command string
	// Timeout bounds a single delivery attempt. Defaults to 5s.
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	command string
}

func New(cfg Config, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cmd := strings.TrimSpace(cfg.Command)
	if cmd == "" {
		cmd = detectCommand()
	}
	return &Adapter{cfg: cfg, log: log, command: cmd}
}

func detectCommand() string {
	candidates := []string{"notify-send"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"osascript", "notify-send"}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			return c
		}
	}
	return ""
}

func (a *Adapter) Name() string { return "desktop" }

func (a *Adapter) Send(ctx context.Context, n transport.Notification) error {
	if a.command == "" {
		return ErrNoNotifier
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch {
	case strings.HasSuffix(a.command, "osascript"):
		script := fmt.Sprintf("display notification %q with title %q", n.Body, n.Title)
		cmd = exec.CommandContext(ctx, a.command, "-e", script)
	default:
		args := []string{"--app-name=nudgeloop"}
		if n.Priority >= 7 {
			args = append(args, "--urgency=critical")
		}
		args = append(args, n.Title, n.Body)
		cmd = exec.CommandContext(ctx, a.command, args...)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("desktop: %s failed: %w (output: %s)", a.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Granted reports whether a notification command exists. Request cannot prompt
// the user on any supported platform, so it re-checks availability.
func (a *Adapter) Granted(context.Context) (bool, error) { return a.command != "", nil }

func (a *Adapter) Request(context.Context) (bool, error) {
	if a.command == "" {
		a.command = detectCommand()
	}
	return a.command != "", nil
}
