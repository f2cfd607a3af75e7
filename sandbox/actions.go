package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// MouseButton identifies a physical mouse button in xdotool's numbering:
// 1 is left, 3 is right.
type MouseButton int

const (
	ButtonLeft  MouseButton = 1
	ButtonRight MouseButton = 3
)

// TypeText types literal text via xdotool, single-quoted with embedded
// single quotes escaped so arbitrary content needs no further handling by
// the caller.
func (s *Sandbox) TypeText(ctx context.Context, text string) error {
	escaped := strings.ReplaceAll(text, "'", `'\''`)
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool type '%s'", escaped))
	return s.sandboxErr("type", err)
}

// Key sends a key combo, e.g. "Return", "ctrl+c", "alt+Tab". Callers pass
// space-separated modifiers and keys; Key joins them with '+' for xdotool.
func (s *Sandbox) Key(ctx context.Context, combo string) error {
	joined := strings.ReplaceAll(strings.TrimSpace(combo), " ", "+")
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool key %s", joined))
	return s.sandboxErr("key", err)
}

// Move moves the mouse cursor to absolute coordinates x, y.
func (s *Sandbox) Move(ctx context.Context, x, y int) error {
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool mousemove %d %d", x, y))
	return s.sandboxErr("move", err)
}

// Click presses and releases button in one action.
func (s *Sandbox) Click(ctx context.Context, button MouseButton) error {
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool click %d", button))
	return s.sandboxErr("click", err)
}

// MouseDown presses button and holds it, for drag gestures.
func (s *Sandbox) MouseDown(ctx context.Context, button MouseButton) error {
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool mousedown %d", button))
	return s.sandboxErr("mousedown", err)
}

// MouseUp releases a previously pressed button.
func (s *Sandbox) MouseUp(ctx context.Context, button MouseButton) error {
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool mouseup %d", button))
	return s.sandboxErr("mouseup", err)
}

// Scroll emits a wheel-up (button 4) or wheel-down (button 5) click.
func (s *Sandbox) Scroll(ctx context.Context, up bool) error {
	button := 5
	if up {
		button = 4
	}
	_, err := s.Exec(ctx, fmt.Sprintf("xdotool click %d", button))
	return s.sandboxErr("scroll", err)
}

// Screenshot captures the desktop with scrot and returns the raw PNG bytes.
func (s *Sandbox) Screenshot(ctx context.Context) ([]byte, error) {
	const path = "/home/agent/screenshots/screen.png"
	if _, err := s.Exec(ctx, "mkdir -p /home/agent/screenshots && scrot "+path); err != nil {
		return nil, s.sandboxErr("screenshot", err)
	}
	data, err := s.docker.copyFrom(ctx, s.containerID, path)
	if err != nil {
		return nil, s.sandboxErr("screenshot", err)
	}
	return data, nil
}

// TerminalLog returns the xterm session's logged output, or
// "[no terminal output]" if nothing has been logged yet.
func (s *Sandbox) TerminalLog(ctx context.Context, maxChars int) (string, error) {
	out, err := s.Exec(ctx, "cat /home/agent/term.log 2>/dev/null")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "[no terminal output]", nil
	}
	if len(out) > maxChars {
		out = out[len(out)-maxChars:]
	}
	return out, nil
}

// ReadFile copies path out of the container and returns its raw bytes,
// via the Docker Engine API's tar transfer rather than a shell command —
// this keeps binary file content free of shell quoting concerns.
func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := s.docker.copyFrom(ctx, s.containerID, path)
	if err != nil {
		return nil, s.sandboxErr("read_file", err)
	}
	return data, nil
}

// WriteFile overwrites path inside the container with content, creating
// any missing parent directories first, again via the Engine API's tar
// transfer.
func (s *Sandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if _, err := s.Exec(ctx, fmt.Sprintf("mkdir -p '%s'", dir)); err != nil {
			return s.sandboxErr("write_file", err)
		}
	}
	if err := s.docker.copyTo(ctx, s.containerID, path, content); err != nil {
		return s.sandboxErr("write_file", err)
	}
	return nil
}
