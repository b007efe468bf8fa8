// Package activity reads the active window and input idle time from the
// desktop and feeds them to the focus state machine.
package activity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrUnsupportedPlatform is returned when no probe exists for this OS
var ErrUnsupportedPlatform = errors.New("activity: unsupported platform")

// Probe reads desktop activity signals
type Probe interface {
	// ActiveWindow returns the application name of the focused window
	ActiveWindow(ctx context.Context) (string, error)
	// IdleTime returns time since the last keyboard or mouse input
	IdleTime(ctx context.Context) (time.Duration, error)
}

// NewProbe returns the probe for the running OS
func NewProbe() (Probe, error) {
	switch runtime.GOOS {
	case "linux":
		return NewX11Probe(), nil
	case "darwin":
		return NewDarwinProbe(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
	}
}

// runner executes an external command and returns its stdout
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// processName resolves a PID to its executable name
func processName(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}

// X11Probe uses xdotool and xprintidle
type X11Probe struct {
	run      runner
	procName func(ctx context.Context, pid int32) (string, error)
}

// NewX11Probe creates a probe for X11 desktops
func NewX11Probe() *X11Probe {
	return &X11Probe{run: execRunner, procName: processName}
}

// ActiveWindow returns the owning process name, falling back to the
// window title when the PID cannot be resolved
func (p *X11Probe) ActiveWindow(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "xdotool", "getwindowfocus", "getwindowname")
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(string(out))

	pidOut, err := p.run(ctx, "xdotool", "getwindowfocus", "getwindowpid")
	if err != nil {
		return title, nil
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(pidOut)), 10, 32)
	if err != nil || pid <= 0 {
		return title, nil
	}
	name, err := p.procName(ctx, int32(pid))
	if err != nil || name == "" {
		return title, nil
	}
	return name, nil
}

// IdleTime parses xprintidle's millisecond output
func (p *X11Probe) IdleTime(ctx context.Context) (time.Duration, error) {
	out, err := p.run(ctx, "xprintidle")
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// DarwinProbe uses osascript and ioreg
type DarwinProbe struct {
	run runner
}

// NewDarwinProbe creates a probe for macOS
func NewDarwinProbe() *DarwinProbe {
	return &DarwinProbe{run: execRunner}
}

const frontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// ActiveWindow returns the frontmost application name
func (p *DarwinProbe) ActiveWindow(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "osascript", "-e", frontmostScript)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

var hidIdleRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// IdleTime reads HIDIdleTime (nanoseconds) from the IOHIDSystem registry entry
func (p *DarwinProbe) IdleTime(ctx context.Context) (time.Duration, error) {
	out, err := p.run(ctx, "ioreg", "-c", "IOHIDSystem")
	if err != nil {
		return 0, err
	}
	m := hidIdleRe.FindSubmatch(out)
	if m == nil {
		return 0, errors.New("activity: HIDIdleTime not found in ioreg output")
	}
	ns, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
	}
	return time.Duration(ns), nil
}
