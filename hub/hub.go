// Package hub multiplexes many agents onto one websocket connection: it
// owns the registry of known agents, persists it to disk, and turns the
// eight client commands into calls against each agent's turn engine.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/codespaceDrifter/intvrface"
	"github.com/codespaceDrifter/intvrface/contextstore"
	"github.com/codespaceDrifter/intvrface/modeladapter"
	"github.com/codespaceDrifter/intvrface/sandbox"
	"github.com/codespaceDrifter/intvrface/turnengine"
)

// persistedAgent is the only state that survives a process restart; the
// rest (running container, turn loop handle) is rediscovered or rebuilt.
type persistedAgent struct {
	Name      string `json:"name"`
	NovncPort int    `json:"novnc_port"`
}

// agentEntry is one agent's live runtime state.
type agentEntry struct {
	novncPort   int
	containerOn bool
	working     bool
	chatMode    bool

	sandbox *sandbox.Sandbox
	engine  *turnengine.Engine
	handle  *intvrface.AgentHandle
}

// ModelConfig carries just the model-adapter settings a Registry needs to
// build each agent's provider.
type ModelConfig struct {
	APIKey           string
	Model            string
	MaxTokens        int
	SummaryMaxTokens int
	MaxWords         int
	PreserveLast     int
}

// Registry owns every known agent: its persisted config, its sandbox, its
// context store, and its turn engine. All exported methods are safe for
// concurrent use.
type Registry struct {
	dataRoot   string
	sandboxCfg sandbox.Config
	modelCfg   ModelConfig
	logger     *slog.Logger
	auditStore *Store

	mu     sync.Mutex
	agents map[string]*agentEntry

	broadcast func(any)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithAuditStore attaches an optional SQLite mirror of create, start,
// delete, and chat events; pause, chat_mode, and individual turns are not
// recorded. The authoritative registry state remains agents.json;
// this is a read-only audit trail for operators.
func WithAuditStore(s *Store) Option {
	return func(r *Registry) { r.auditStore = s }
}

// New constructs a Registry rooted at dataRoot (holding agents.json and
// each agent's context/ and workspace/ subdirectories) and loads any
// previously persisted agents, re-probing their actual container state.
func New(dataRoot string, sandboxCfg sandbox.Config, modelCfg ModelConfig, opts ...Option) (*Registry, error) {
	r := &Registry{
		dataRoot:   dataRoot,
		sandboxCfg: sandboxCfg,
		modelCfg:   modelCfg,
		logger:     nopLogger,
		agents:     map[string]*agentEntry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("hub: create data root: %w", err)
	}
	if err := r.load(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) agentsFile() string { return filepath.Join(r.dataRoot, "agents.json") }

// SetBroadcast installs the callback invoked with the updated agent list
// after every mutating command. Hub.NewHub wires this to its websocket
// fan-out; Registry works fine without one for tests that don't need it.
func (r *Registry) SetBroadcast(broadcast func(any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = broadcast
}

// load reads agents.json and, for each entry, rebuilds its runtime state
// and re-probes the container's actual docker status — the process may
// have restarted while a container kept running.
func (r *Registry) load(ctx context.Context) error {
	data, err := os.ReadFile(r.agentsFile())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hub: read agents.json: %w", err)
	}

	var saved []persistedAgent
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("hub: parse agents.json: %w", err)
	}

	for _, p := range saved {
		entry, err := r.buildEntry(p.Name, p.NovncPort)
		if err != nil {
			r.logger.Error("rebuild agent failed", "name", p.Name, "error", err)
			continue
		}
		status, err := entry.sandbox.Status(ctx)
		if err != nil {
			r.logger.Error("probe container state failed", "name", p.Name, "error", err)
		}
		entry.containerOn = status == sandbox.StatusRunning
		r.agents[p.Name] = entry
	}
	return nil
}

// persist writes the {name, novnc_port} pairs for every known agent —
// exactly the fields needed to rebuild runtime state on the next load.
func (r *Registry) persist() error {
	saved := make([]persistedAgent, 0, len(r.agents))
	for name, entry := range r.agents {
		saved = append(saved, persistedAgent{Name: name, NovncPort: entry.novncPort})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return os.WriteFile(r.agentsFile(), data, 0o644)
}

func (r *Registry) buildEntry(name string, novncPort int) (*agentEntry, error) {
	sb, err := sandbox.New(r.sandboxCfg, name, novncPort, sandbox.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}

	store, err := contextstore.Open(
		filepath.Join(r.dataRoot, "context", name),
		contextstore.WithLogger(r.logger),
		contextstore.WithMaxWords(r.modelCfg.MaxWords),
		contextstore.WithPreserveLast(r.modelCfg.PreserveLast),
	)
	if err != nil {
		return nil, err
	}

	provider := modeladapter.NewClaude(r.modelCfg.APIKey,
		modeladapter.WithModel(r.modelCfg.Model),
		modeladapter.WithMaxTokens(r.modelCfg.MaxTokens),
		modeladapter.WithSummaryMaxTokens(r.modelCfg.SummaryMaxTokens),
	)

	engine, err := turnengine.New(store, provider, sb, turnengine.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}

	return &agentEntry{novncPort: novncPort, sandbox: sb, engine: engine}, nil
}

// AgentStatus is the wire-shaped view of one agent's status, matching
// get_agents_list's fields.
type AgentStatus struct {
	Name        string `json:"name"`
	ContainerOn bool   `json:"container_on"`
	Working     bool   `json:"working"`
	NovncPort   int    `json:"novnc_port"`
}

// List returns the status of every known agent.
func (r *Registry) List() []AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AgentStatus, 0, len(r.agents))
	for name, entry := range r.agents {
		out = append(out, AgentStatus{Name: name, ContainerOn: entry.containerOn, Working: entry.working, NovncPort: entry.novncPort})
	}
	return out
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
