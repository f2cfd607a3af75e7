// Package turnengine drives one agent's turn loop: read context, call the
// model, split its output into narration and commands, execute the
// commands against a sandbox, and feed perception back in as the next
// turn's context.
package turnengine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	cmdpkg "github.com/codespaceDrifter/intvrface/command"
	"github.com/codespaceDrifter/intvrface/contextstore"
	"github.com/codespaceDrifter/intvrface/modeladapter"
	"github.com/codespaceDrifter/intvrface/sandbox"
)

const terminalLogMaxChars = 5000

// postActionSettle is how long a turn waits after its last command before
// capturing auto-feedback, giving xdotool and the container's xterm log
// time to flush.
const postActionSettle = time.Second

// Actuator is the sandbox surface a turn drives: keyboard, mouse,
// perception, and direct file I/O. *sandbox.Sandbox satisfies it; tests
// substitute a fake so a turn can be exercised without a Docker daemon.
type Actuator interface {
	TypeText(ctx context.Context, text string) error
	Key(ctx context.Context, combo string) error
	Move(ctx context.Context, x, y int) error
	Click(ctx context.Context, button sandbox.MouseButton) error
	MouseDown(ctx context.Context, button sandbox.MouseButton) error
	MouseUp(ctx context.Context, button sandbox.MouseButton) error
	Scroll(ctx context.Context, up bool) error
	Screenshot(ctx context.Context) ([]byte, error)
	TerminalLog(ctx context.Context, maxChars int) (string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, content []byte) error
}

// Engine drives one agent: its context store, its model provider, and its
// sandbox actuator. All three are supplied already constructed; Engine
// only sequences calls between them.
type Engine struct {
	store    *contextstore.Store
	provider modeladapter.Provider
	sandbox  Actuator
	logger   *slog.Logger

	kv       []byte
	working  atomic.Bool
	chatMode atomic.Bool
}

var _ Actuator = (*sandbox.Sandbox)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New constructs an Engine over an already-open context store, model
// provider, and sandbox actuator.
func New(store *contextstore.Store, provider modeladapter.Provider, sb Actuator, opts ...Option) (*Engine, error) {
	kv, err := store.LoadKV()
	if err != nil {
		return nil, fmt.Errorf("turnengine: load kv: %w", err)
	}
	e := &Engine{store: store, provider: provider, sandbox: sb, logger: nopLogger, kv: kv}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetChatMode toggles plain conversational replies (no command parsing or
// execution) on or off.
func (e *Engine) SetChatMode(on bool) { e.chatMode.Store(on) }

// ChatMode reports whether chat mode is currently on.
func (e *Engine) ChatMode() bool { return e.chatMode.Load() }

// Messages returns the agent's current working context.
func (e *Engine) Messages() []contextstore.Message { return e.store.Messages() }

// Chat appends a user message the agent will see on its next turn, without
// running a turn itself.
func (e *Engine) Chat(text string) error {
	return e.store.Add(contextstore.RoleUser, contextstore.TextBlock(text))
}

// Pause stops Work's loop after its current turn finishes. It never
// interrupts a turn already in flight — the model call, command
// execution, and feedback capture for that turn always complete.
func (e *Engine) Pause() { e.working.Store(false) }

// Working reports whether Work's loop is currently set to continue.
func (e *Engine) Working() bool { return e.working.Load() }

// Work loops Turn until Pause is called or ctx is cancelled, seeding
// "start working" if the context is empty so the model always has
// something to respond to. onTurn, if non-nil, is called after every turn
// with that turn's response and the live message list.
func (e *Engine) Work(ctx context.Context, onTurn func(response string, messages []contextstore.Message) error) error {
	e.working.Store(true)
	if len(e.store.Messages()) == 0 {
		if err := e.store.Add(contextstore.RoleUser, contextstore.TextBlock(modeladapter.WorkMessage)); err != nil {
			return err
		}
	}

	for e.working.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		response, err := e.Turn(ctx, "")
		if err != nil {
			return err
		}
		if onTurn != nil {
			if err := onTurn(response, e.store.Messages()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Turn runs one full turn: optionally adds userInput, calls the model,
// records its output, executes any parsed commands, captures feedback,
// and summarizes if the context has outgrown its budget. Returns the
// model's raw response text.
func (e *Engine) Turn(ctx context.Context, userInput string) (string, error) {
	// 1. add user input if provided
	if userInput != "" {
		if err := e.store.Add(contextstore.RoleUser, contextstore.TextBlock(userInput)); err != nil {
			return "", err
		}
	}

	// 2. model reads the marshaled context, outputs a response
	marshaled, err := e.store.Marshal()
	if err != nil {
		return "", err
	}
	response, newKV, err := e.provider.Respond(ctx, marshaled, e.kv)
	if err != nil {
		return "", err
	}
	e.kv = newKV

	if e.chatMode.Load() {
		if err := e.store.Add(contextstore.RoleAssistant, contextstore.TextBlock(response)); err != nil {
			return "", err
		}
		if err := e.store.SaveKV(e.kv); err != nil {
			return "", err
		}
		return response, nil
	}

	// 3. split response into narration (assistant) and command segments
	for _, seg := range cmdpkg.Split(response) {
		role := contextstore.RoleAssistant
		if seg.IsCommand {
			role = contextstore.RoleCommand
		}
		if err := e.store.Add(role, contextstore.TextBlock(seg.Text)); err != nil {
			return "", err
		}
	}

	if err := e.store.SaveKV(e.kv); err != nil {
		return "", err
	}

	// 4. parse commands out of the response
	commands := cmdpkg.Parse(response)

	// 5. execute commands, collect feedback
	if len(commands) > 0 && e.sandbox != nil {
		if err := e.runCommands(ctx, commands); err != nil {
			return "", err
		}
	}

	// 6. check for summarization
	if e.store.NeedsSummary() {
		marshaled, err := e.store.Marshal()
		if err != nil {
			return "", err
		}
		summary, _, err := e.provider.Summarize(ctx, marshaled, e.kv)
		if err != nil {
			return "", err
		}
		if err := e.store.ApplySummary(summary); err != nil {
			return "", err
		}
		e.kv = nil // invalidate cache after a context rewrite
		if err := e.store.SaveKV(nil); err != nil {
			return "", err
		}
	}

	return response, nil
}

func (e *Engine) runCommands(ctx context.Context, commands []cmdpkg.Command) error {
	var hadKeyboard, hadMouse bool

	for _, c := range commands {
		switch {
		case cmdpkg.FileVerbs[c.Verb]:
			if len(c.Args) < cmdpkg.MinArgs[c.Verb] {
				if err := e.store.Add(contextstore.RoleEnvironment, contextstore.TextBlock("[SYSTEM]\n"+modeladapter.CommandErrorPrompt)); err != nil {
					return err
				}
				continue
			}
			if err := e.runFileVerb(ctx, c); err != nil {
				return err
			}

		case c.Verb == "TYPE":
			arg := ""
			if len(c.Args) > 0 {
				arg = c.Args[0]
			}
			if err := e.sandbox.TypeText(ctx, arg); err != nil {
				return err
			}
			hadKeyboard = true

		case c.Verb == "KEY":
			combo := ""
			if len(c.Args) > 0 {
				combo = c.Args[0]
			}
			if err := e.sandbox.Key(ctx, combo); err != nil {
				return err
			}
			hadKeyboard = true

		case c.Verb == "MOVE":
			if len(c.Args) < 2 {
				continue
			}
			x, errX := strconv.Atoi(c.Args[0])
			y, errY := strconv.Atoi(c.Args[1])
			if errX != nil || errY != nil {
				continue
			}
			if err := e.sandbox.Move(ctx, x, y); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "LCLICK":
			if err := e.sandbox.Click(ctx, sandbox.ButtonLeft); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "RCLICK":
			if err := e.sandbox.Click(ctx, sandbox.ButtonRight); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "LDOWN":
			if err := e.sandbox.MouseDown(ctx, sandbox.ButtonLeft); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "LUP":
			if err := e.sandbox.MouseUp(ctx, sandbox.ButtonLeft); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "RDOWN":
			if err := e.sandbox.MouseDown(ctx, sandbox.ButtonRight); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "RUP":
			if err := e.sandbox.MouseUp(ctx, sandbox.ButtonRight); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "SCROLLUP":
			if err := e.sandbox.Scroll(ctx, true); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "SCROLLDOWN":
			if err := e.sandbox.Scroll(ctx, false); err != nil {
				return err
			}
			hadMouse = true

		case c.Verb == "LOOK":
			if err := e.addScreenshot(ctx); err != nil {
				return err
			}

		case c.Verb == "TERM":
			if err := e.addTerminal(ctx); err != nil {
				return err
			}

		case c.Verb == "WAIT":
			secs := 5
			if len(c.Args) > 0 {
				if n, err := strconv.Atoi(c.Args[0]); err == nil {
					secs = n
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(secs) * time.Second):
			}
		}
	}

	// 6. auto-feedback: TERM after keyboard, LOOK after mouse. Wait for
	// xdotool and the xterm log to settle before capturing.
	if hadKeyboard || hadMouse {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(postActionSettle):
		}
	}
	if hadKeyboard {
		if err := e.addTerminal(ctx); err != nil {
			return err
		}
	}
	if hadMouse {
		if err := e.addScreenshot(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runFileVerb(ctx context.Context, c cmdpkg.Command) error {
	switch c.Verb {
	case "READ":
		return e.handleRead(ctx, c.Args)
	case "WRITE":
		return e.handleWrite(ctx, c.Args)
	case "EDIT":
		replaceAll := len(c.Args) > 3 && c.Args[3] == "-all"
		return e.handleEdit(ctx, c.Args, replaceAll)
	}
	return nil
}

func (e *Engine) handleRead(ctx context.Context, args []string) error {
	content, err := e.sandbox.ReadFile(ctx, args[0])
	if err != nil {
		return err
	}
	lines := strings.Split(string(content), "\n")

	start := 0
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			start = n - 1
		}
	}
	end := len(lines)
	if len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			end = n
		}
	}
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}

	var b strings.Builder
	for i, line := range lines[start:end] {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d| %s", i+1+start, line)
	}
	return e.store.Add(contextstore.RoleEnvironment, contextstore.TextBlock(fmt.Sprintf("[READ %s]\n%s", args[0], b.String())))
}

func (e *Engine) handleWrite(ctx context.Context, args []string) error {
	if err := e.sandbox.WriteFile(ctx, args[0], []byte(args[1])); err != nil {
		return err
	}
	return e.store.Add(contextstore.RoleEnvironment, contextstore.TextBlock(
		fmt.Sprintf("[WRITE %s] %d chars written", args[0], len(args[1]))))
}

func (e *Engine) handleEdit(ctx context.Context, args []string, replaceAll bool) error {
	content, err := e.sandbox.ReadFile(ctx, args[0])
	if err != nil {
		return err
	}
	oldText, newText := args[1], args[2]
	count := strings.Count(string(content), oldText)

	var result string
	if replaceAll {
		result = strings.ReplaceAll(string(content), oldText, newText)
	} else {
		result = strings.Replace(string(content), oldText, newText, 1)
		if count > 1 {
			count = 1
		}
	}

	if err := e.sandbox.WriteFile(ctx, args[0], []byte(result)); err != nil {
		return err
	}
	return e.store.Add(contextstore.RoleEnvironment, contextstore.TextBlock(
		fmt.Sprintf("[EDIT %s] %d replacement(s)", args[0], count)))
}

func (e *Engine) addScreenshot(ctx context.Context) error {
	png, err := e.sandbox.Screenshot(ctx)
	if err != nil {
		return err
	}
	return e.store.Add(contextstore.RoleEnvironment, contextstore.ImageBlock(png))
}

func (e *Engine) addTerminal(ctx context.Context) error {
	out, err := e.sandbox.TerminalLog(ctx, terminalLogMaxChars)
	if err != nil {
		return err
	}
	return e.store.Add(contextstore.RoleEnvironment, contextstore.TextBlock("[TERM]\n"+out))
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
