package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codespaceDrifter/intvrface"
	"github.com/codespaceDrifter/intvrface/contextstore"
)

// Command is the wire shape of every message a client sends over the
// websocket. Which fields matter depends on Cmd.
type Command struct {
	Cmd       string `json:"cmd"`
	Name      string `json:"name,omitempty"`
	NovncPort int    `json:"novnc_port,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`
	Text      string `json:"text,omitempty"`
}

type agentsMessage struct {
	Type   string        `json:"type"`
	Agents []AgentStatus `json:"agents"`
}

type contextMessage struct {
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Messages []contextstore.Message `json:"messages"`
}

type errorMessage struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// Dispatch decodes one client message and runs the corresponding registry
// operation, pushing resulting state to every connected client via
// broadcast. A malformed or failed command produces an error message sent
// only to the requester, via reply.
func (r *Registry) Dispatch(ctx context.Context, raw []byte, reply func(any)) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		reply(errorMessage{Type: "error", Msg: "malformed command: " + err.Error()})
		return
	}

	var err error
	switch cmd.Cmd {
	case "list":
		r.broadcastAgents()
		return
	case "create":
		err = r.Create(ctx, cmd.Name, cmd.NovncPort)
	case "start":
		err = r.Start(ctx, cmd.Name)
	case "pause":
		err = r.PauseAgent(cmd.Name)
	case "delete":
		err = r.Delete(ctx, cmd.Name)
	case "chat_mode":
		err = r.SetChatMode(ctx, cmd.Name, cmd.Enabled)
	case "chat":
		if err := r.Chat(ctx, cmd.Name, cmd.Text); err != nil {
			reply(errorMessage{Type: "error", Msg: err.Error()})
			return
		}
		r.broadcastContext(cmd.Name)
		return
	case "get_context":
		r.sendContext(cmd.Name, reply)
		return
	default:
		reply(errorMessage{Type: "error", Msg: fmt.Sprintf("unknown command %q", cmd.Cmd)})
		return
	}

	if err != nil {
		reply(errorMessage{Type: "error", Msg: err.Error()})
		return
	}
	r.broadcastAgents()
}

func (r *Registry) broadcastAgents() {
	r.mu.Lock()
	broadcast := r.broadcast
	r.mu.Unlock()
	if broadcast == nil {
		return
	}
	broadcast(agentsMessage{Type: "agents", Agents: r.List()})
}

// broadcastContext pushes name's current message history to every
// connected client, used after a chat message so browsers see the new
// turn without polling get_context.
func (r *Registry) broadcastContext(name string) {
	r.mu.Lock()
	entry, ok := r.agents[name]
	broadcast := r.broadcast
	r.mu.Unlock()
	if !ok || broadcast == nil {
		return
	}
	broadcast(contextMessage{Type: "context", Name: name, Messages: entry.engine.Messages()})
}

func (r *Registry) sendContext(name string, reply func(any)) {
	r.mu.Lock()
	entry, ok := r.agents[name]
	r.mu.Unlock()
	if !ok {
		reply(errorMessage{Type: "error", Msg: fmt.Sprintf("unknown agent %q", name)})
		return
	}
	reply(contextMessage{Type: "context", Name: name, Messages: entry.engine.Messages()})
}

// Create registers a new agent under name, publishing noVNC on novncPort.
// The container is not started; call Start to bring it up.
func (r *Registry) Create(ctx context.Context, name string, novncPort int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("hub: agent %q already exists", name)
	}

	entry, err := r.buildEntry(name, novncPort)
	if err != nil {
		return fmt.Errorf("hub: create agent %q: %w", name, err)
	}
	r.agents[name] = entry

	if r.auditStore != nil {
		r.auditStore.RecordEvent(ctx, name, "create", fmt.Sprintf("novnc_port=%d", novncPort))
	}
	return r.persist()
}

// Start brings up name's container and launches its background turn loop,
// which runs until the agent is paused, deleted, or the hub shuts down.
func (r *Registry) Start(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.agents[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub: unknown agent %q", name)
	}
	if entry.working {
		return nil
	}

	if err := entry.sandbox.Start(ctx); err != nil {
		return fmt.Errorf("hub: start agent %q: %w", name, err)
	}

	runCtx := context.WithoutCancel(ctx)
	handle := intvrface.Spawn(runCtx, name, func(loopCtx context.Context) error {
		err := entry.engine.Work(loopCtx, func(response string, messages []contextstore.Message) error {
			r.broadcastAgents()
			return nil
		})
		r.mu.Lock()
		entry.working = false
		r.mu.Unlock()
		r.broadcastAgents()
		return err
	})

	r.mu.Lock()
	entry.containerOn = true
	entry.working = true
	entry.handle = handle
	r.mu.Unlock()

	if r.auditStore != nil {
		r.auditStore.RecordEvent(ctx, name, "start", "")
	}
	return nil
}

// PauseAgent requests that name's turn loop stop after its current turn.
// It never interrupts a turn already in flight.
func (r *Registry) PauseAgent(name string) error {
	r.mu.Lock()
	entry, ok := r.agents[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub: unknown agent %q", name)
	}
	entry.engine.Pause()
	return nil
}

// Delete stops and destroys name's container, cancels its turn loop, and
// removes it from the registry permanently.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.agents[name]
	if ok {
		delete(r.agents, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub: unknown agent %q", name)
	}

	if entry.handle != nil {
		entry.handle.Cancel()
	}
	if err := entry.sandbox.Destroy(ctx); err != nil {
		return fmt.Errorf("hub: delete agent %q: %w", name, err)
	}

	if r.auditStore != nil {
		r.auditStore.RecordEvent(ctx, name, "delete", "")
	}
	return r.persist()
}

// SetChatMode toggles name between autonomous work and chat-only mode.
// Enabling pauses the turn loop; disabling restarts it if the container is
// on and not already running.
func (r *Registry) SetChatMode(ctx context.Context, name string, enabled bool) error {
	r.mu.Lock()
	entry, ok := r.agents[name]
	if ok {
		entry.chatMode = enabled
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub: unknown agent %q", name)
	}

	entry.engine.SetChatMode(enabled)
	if enabled {
		entry.engine.Pause()
		return nil
	}
	if entry.containerOn && !entry.working {
		return r.Start(ctx, name)
	}
	return nil
}

// Chat appends a user message to name's context and, if chat mode is
// currently enabled, immediately runs one turn against it.
func (r *Registry) Chat(ctx context.Context, name string, text string) error {
	r.mu.Lock()
	entry, ok := r.agents[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub: unknown agent %q", name)
	}

	if err := entry.engine.Chat(text); err != nil {
		return fmt.Errorf("hub: chat with agent %q: %w", name, err)
	}

	if r.auditStore != nil {
		r.auditStore.RecordEvent(ctx, name, "chat", text)
	}

	if entry.chatMode {
		if _, err := entry.engine.Turn(ctx, ""); err != nil {
			return fmt.Errorf("hub: chat turn for agent %q: %w", name, err)
		}
	}
	return nil
}
