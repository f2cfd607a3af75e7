// Package sandbox drives one agent's desktop container: build, lifecycle,
// and actuation (keyboard, mouse, screenshots, direct file I/O), all through
// the Docker Engine API rather than shelling out to the docker CLI.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codespaceDrifter/intvrface"
)

// Status is the lifecycle state of a Sandbox's container.
type Status int

const (
	StatusAbsent Status = iota
	StatusStopped
	StatusRunning
)

// Config controls image build and readiness polling for every Sandbox
// created from it.
type Config struct {
	DockerHost    string
	ImageTag      string
	ScreenWidth   int
	ScreenHeight  int
	ReadyPoll     time.Duration
	ReadyTimeout  time.Duration
	WorkspaceRoot string
	BuildRoot     string
}

// DefaultConfig matches the geometry and polling cadence the desktop image
// is built around.
func DefaultConfig() Config {
	return Config{
		ImageTag:     "intvrface-agent:latest",
		ScreenWidth:  1280,
		ScreenHeight: 1024,
		ReadyPoll:    200 * time.Millisecond,
		ReadyTimeout: 5 * time.Second,
	}
}

// Sandbox controls one agent's container: its workspace bind mount, its
// noVNC port, and every actuator the turn engine calls into.
type Sandbox struct {
	cfg       Config
	docker    *dockerClient
	agentID   string
	novncPort int
	logger    *slog.Logger

	containerID string
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLogger sets a structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) { s.logger = l }
}

// New constructs a Sandbox for agentID, publishing its noVNC websocket on
// novncPort.
func New(cfg Config, agentID string, novncPort int, opts ...Option) (*Sandbox, error) {
	docker, err := newDockerClient(cfg.DockerHost)
	if err != nil {
		return nil, err
	}
	s := &Sandbox{cfg: cfg, docker: docker, agentID: agentID, novncPort: novncPort, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sandbox) geometry() string {
	return strconv.Itoa(s.cfg.ScreenWidth) + "x" + strconv.Itoa(s.cfg.ScreenHeight)
}

func (s *Sandbox) workspace() string {
	return filepath.Join(s.cfg.WorkspaceRoot, s.agentID)
}

func (s *Sandbox) sandboxErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &intvrface.ErrSandbox{AgentID: s.agentID, Op: op, Message: err.Error()}
}

func (s *Sandbox) hashPath() string       { return filepath.Join(s.cfg.BuildRoot, "hash") }
func (s *Sandbox) dockerfilePath() string { return filepath.Join(s.cfg.BuildRoot, "Dockerfile") }

// NeedsRebuild reports whether the image tag is absent on the host, or the
// hash of the rendered recipe saved from the last build no longer matches
// the current recipe — e.g. after a screen-geometry change.
func (s *Sandbox) NeedsRebuild(ctx context.Context) (bool, error) {
	exists, err := s.docker.imageExists(ctx, s.cfg.ImageTag)
	if err != nil {
		return false, s.sandboxErr("needs_rebuild", err)
	}
	if !exists {
		return true, nil
	}
	if s.cfg.BuildRoot == "" {
		return false, nil
	}
	stored, err := os.ReadFile(s.hashPath())
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, s.sandboxErr("needs_rebuild", err)
	}
	return string(stored) != recipeHash(s.geometry()), nil
}

// Build builds the desktop image if it is missing or its recipe changed.
// A rebuild first removes every container still running the old image, so
// a stale container is never left pointing at an image tag about to be
// replaced.
func (s *Sandbox) Build(ctx context.Context) error {
	needs, err := s.NeedsRebuild(ctx)
	if err != nil {
		return err
	}
	if !needs {
		s.logger.Info("image already built", "image", s.cfg.ImageTag)
		return nil
	}

	s.logger.Info("removing containers using stale image", "image", s.cfg.ImageTag)
	if err := s.docker.removeContainersUsingImage(ctx, s.cfg.ImageTag); err != nil {
		return s.sandboxErr("build", err)
	}

	s.logger.Info("building image", "image", s.cfg.ImageTag)
	if err := s.docker.buildImage(ctx, s.cfg.ImageTag, s.geometry()); err != nil {
		return s.sandboxErr("build", err)
	}
	return s.saveRecipe()
}

// saveRecipe persists the rendered Dockerfile and its hash so a later
// NeedsRebuild can detect a recipe change without re-reading the image.
// A no-op when BuildRoot is unset.
func (s *Sandbox) saveRecipe() error {
	if s.cfg.BuildRoot == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.BuildRoot, 0o755); err != nil {
		return s.sandboxErr("build", err)
	}
	if err := os.WriteFile(s.dockerfilePath(), []byte(renderDockerfile(s.geometry())), 0o644); err != nil {
		return s.sandboxErr("build", err)
	}
	if err := os.WriteFile(s.hashPath(), []byte(recipeHash(s.geometry())), 0o644); err != nil {
		return s.sandboxErr("build", err)
	}
	return nil
}

// Status reports whether the container exists and, if so, whether it is
// currently running.
func (s *Sandbox) Status(ctx context.Context) (Status, error) {
	id, err := s.docker.findContainer(ctx, s.agentID)
	if err != nil {
		return StatusAbsent, s.sandboxErr("status", err)
	}
	if id == "" {
		return StatusAbsent, nil
	}
	s.containerID = id
	out, err := s.docker.exec(ctx, id, "echo up")
	if err != nil || !strings.Contains(out, "up") {
		return StatusStopped, nil
	}
	return StatusRunning, nil
}

// Start builds the image if needed, creates the container if it doesn't
// exist, and starts it — reusing any prior workspace state. It blocks until
// the virtual display reports readiness or ReadyTimeout elapses.
func (s *Sandbox) Start(ctx context.Context) error {
	if err := s.Build(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(s.workspace(), 0o755); err != nil {
		return s.sandboxErr("start", err)
	}

	id, err := s.docker.findContainer(ctx, s.agentID)
	if err != nil {
		return s.sandboxErr("start", err)
	}
	if id == "" {
		s.logger.Info("creating container", "agent_id", s.agentID)
		id, err = s.docker.createContainer(ctx, s.agentID, s.cfg.ImageTag, s.workspace(), s.novncPort)
		if err != nil {
			return s.sandboxErr("start", err)
		}
	}
	s.containerID = id

	if err := s.docker.startContainer(ctx, id); err != nil {
		return s.sandboxErr("start", err)
	}

	return s.awaitDisplay(ctx)
}

// awaitDisplay polls until the virtual display reports the configured
// screen width (Xvfb is up) and the xterm window can be found and focused
// (the terminal is ready to receive keystrokes), latching each check once
// it first passes. It errors if either check never passes within
// ReadyTimeout.
func (s *Sandbox) awaitDisplay(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ReadyTimeout)
	width := strconv.Itoa(s.cfg.ScreenWidth)
	var geomReady, focusReady bool
	for time.Now().Before(deadline) {
		if !geomReady {
			out, err := s.docker.exec(ctx, s.containerID, "xdotool getdisplaygeometry")
			geomReady = err == nil && strings.Contains(out, width)
		}
		if !focusReady {
			out, err := s.docker.exec(ctx, s.containerID, "xdotool search --name xterm windowfocus")
			focusReady = err == nil && strings.TrimSpace(out) != ""
		}
		if geomReady && focusReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return s.sandboxErr("start", ctx.Err())
		case <-time.After(s.cfg.ReadyPoll):
		}
	}
	return s.sandboxErr("start", fmt.Errorf("display not ready after %s (geometry=%t focus=%t)", s.cfg.ReadyTimeout, geomReady, focusReady))
}

// Stop stops the container, preserving its filesystem state for a later Start.
func (s *Sandbox) Stop(ctx context.Context) error {
	if s.containerID == "" {
		id, err := s.docker.findContainer(ctx, s.agentID)
		if err != nil {
			return s.sandboxErr("stop", err)
		}
		s.containerID = id
	}
	if s.containerID == "" {
		return nil
	}
	if err := s.docker.stopContainer(ctx, s.containerID); err != nil {
		return s.sandboxErr("stop", err)
	}
	return nil
}

// Destroy stops and removes the container, losing all container-side
// state. The bind-mounted workspace directory on the host is untouched.
func (s *Sandbox) Destroy(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	if s.containerID == "" {
		return nil
	}
	if err := s.docker.removeContainer(ctx, s.containerID); err != nil {
		return s.sandboxErr("destroy", err)
	}
	s.containerID = ""
	return nil
}

// Exec runs a shell command inside the container and returns its combined
// stdout+stderr.
func (s *Sandbox) Exec(ctx context.Context, cmd string) (string, error) {
	out, err := s.docker.exec(ctx, s.containerID, cmd)
	if err != nil {
		return "", s.sandboxErr("exec", err)
	}
	return out, nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
