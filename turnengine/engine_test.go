package turnengine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codespaceDrifter/intvrface/contextstore"
	"github.com/codespaceDrifter/intvrface/sandbox"
)

// fakeProvider returns queued responses in order, looping the last one
// once exhausted so Work-loop tests don't need exact call counts.
type fakeProvider struct {
	responses []string
	calls     int
	summaries int
}

func (p *fakeProvider) Respond(_ context.Context, _ []contextstore.Message, _ []byte) (string, []byte, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil, nil
}

func (p *fakeProvider) Summarize(_ context.Context, _ []contextstore.Message, _ []byte) (string, []byte, error) {
	p.summaries++
	return "a compact summary", nil, nil
}

// fakeActuator records every call it receives instead of touching Docker.
type fakeActuator struct {
	typed       []string
	keys        []string
	moves       [][2]int
	clicks      []sandbox.MouseButton
	screenshots int
	terminals   int
	files       map[string][]byte
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{files: map[string][]byte{}}
}

func (f *fakeActuator) TypeText(_ context.Context, text string) error { f.typed = append(f.typed, text); return nil }
func (f *fakeActuator) Key(_ context.Context, combo string) error     { f.keys = append(f.keys, combo); return nil }
func (f *fakeActuator) Move(_ context.Context, x, y int) error        { f.moves = append(f.moves, [2]int{x, y}); return nil }
func (f *fakeActuator) Click(_ context.Context, b sandbox.MouseButton) error {
	f.clicks = append(f.clicks, b)
	return nil
}
func (f *fakeActuator) MouseDown(_ context.Context, b sandbox.MouseButton) error { return nil }
func (f *fakeActuator) MouseUp(_ context.Context, b sandbox.MouseButton) error   { return nil }
func (f *fakeActuator) Scroll(_ context.Context, up bool) error                 { return nil }
func (f *fakeActuator) Screenshot(_ context.Context) ([]byte, error) {
	f.screenshots++
	return []byte{0x89, 'P', 'N', 'G'}, nil
}
func (f *fakeActuator) TerminalLog(_ context.Context, maxChars int) (string, error) {
	f.terminals++
	return "$ echo hi\nhi", nil
}
func (f *fakeActuator) ReadFile(_ context.Context, path string) ([]byte, error) {
	return f.files[path], nil
}
func (f *fakeActuator) WriteFile(_ context.Context, path string, content []byte) error {
	f.files[path] = content
	return nil
}

func newTestEngine(t *testing.T, provider *fakeProvider, act *fakeActuator) *Engine {
	t.Helper()
	store, err := contextstore.Open(filepath.Join(t.TempDir(), "agent-1"))
	require.NoError(t, err)
	e, err := New(store, provider, act)
	require.NoError(t, err)
	return e
}

func TestTurnTypeTriggersAutoTerminal(t *testing.T) {
	provider := &fakeProvider{responses: []string{"typing now<func>TYPE</func><param>ls</param>"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"ls"}, act.typed)
	assert.Equal(t, 1, act.terminals)
	assert.Equal(t, 0, act.screenshots)
}

func TestTurnMouseTriggersAutoScreenshot(t *testing.T) {
	provider := &fakeProvider{responses: []string{"<func>LCLICK</func>"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, len(act.clicks))
	assert.Equal(t, 1, act.screenshots)
	assert.Equal(t, 0, act.terminals)
}

func TestTurnExplicitLookDoesNotDoubleCapture(t *testing.T) {
	provider := &fakeProvider{responses: []string{"<func>LOOK</func>"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, act.screenshots)
}

func TestTurnWriteThenRead(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`<func>WRITE</func><param>/home/agent/a.txt</param><param>hello world</param>`,
	}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), act.files["/home/agent/a.txt"])

	msgs := e.store.Messages()
	found := false
	for _, m := range msgs {
		for _, b := range m.Content {
			if strings.Contains(b.Text, "[WRITE /home/agent/a.txt] 11 chars written") {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestTurnFileVerbMissingArgsYieldsErrorFeedback(t *testing.T) {
	provider := &fakeProvider{responses: []string{"<func>WRITE</func><param>/home/agent/a.txt</param>"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)

	msgs := e.store.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, contextstore.RoleEnvironment, last.Role)
	assert.Contains(t, last.Content[0].Text, "[SYSTEM]")
}

func TestTurnEditReplacesFirstOccurrenceOnly(t *testing.T) {
	act := newFakeActuator()
	act.files["/home/agent/a.txt"] = []byte("foo foo foo")
	provider := &fakeProvider{responses: []string{
		`<func>EDIT</func><param>/home/agent/a.txt</param><param>foo</param><param>bar</param>`,
	}}
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []byte("bar foo foo"), act.files["/home/agent/a.txt"])
}

func TestTurnEditReplaceAll(t *testing.T) {
	act := newFakeActuator()
	act.files["/home/agent/a.txt"] = []byte("foo foo foo")
	provider := &fakeProvider{responses: []string{
		`<func>EDIT</func><param>/home/agent/a.txt</param><param>foo</param><param>bar</param><param>-all</param>`,
	}}
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []byte("bar bar bar"), act.files["/home/agent/a.txt"])
}

func TestTurnReadNumbersLines(t *testing.T) {
	act := newFakeActuator()
	act.files["/home/agent/a.txt"] = []byte("line one\nline two\nline three")
	provider := &fakeProvider{responses: []string{
		`<func>READ</func><param>/home/agent/a.txt</param><param>1</param><param>2</param>`,
	}}
	e := newTestEngine(t, provider, act)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)

	msgs := e.store.Messages()
	last := msgs[len(msgs)-1]
	assert.Contains(t, last.Content[0].Text, "   1| line one")
	assert.Contains(t, last.Content[0].Text, "   2| line two")
	assert.NotContains(t, last.Content[0].Text, "line three")
}

func TestChatModeSkipsCommandParsing(t *testing.T) {
	provider := &fakeProvider{responses: []string{"just chatting, <func>LOOK</func> is not a command here"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)
	e.SetChatMode(true)

	_, err := e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, act.screenshots)

	msgs := e.store.Messages()
	assert.Equal(t, contextstore.RoleAssistant, msgs[len(msgs)-1].Role)
}

func TestChatAddsUserMessageWithoutRunningTurn(t *testing.T) {
	provider := &fakeProvider{responses: []string{"should not be called"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	require.NoError(t, e.Chat("hello there"))
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, contextstore.RoleUser, e.store.Messages()[0].Role)
}

func TestWorkSeedsStartWorkingWhenEmpty(t *testing.T) {
	provider := &fakeProvider{responses: []string{"<func>WAIT</func><param>0</param>"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	turns := 0
	err := e.Work(context.Background(), func(response string, messages []contextstore.Message) error {
		turns++
		e.Pause()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, turns)

	first := e.store.Messages()[0]
	assert.Equal(t, contextstore.RoleUser, first.Role)
	assert.Equal(t, "start working", first.Content[0].Text)
}

func TestWorkStopsOnPause(t *testing.T) {
	provider := &fakeProvider{responses: []string{"thinking, no commands"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	turns := 0
	err := e.Work(context.Background(), func(response string, messages []contextstore.Message) error {
		turns++
		if turns >= 3 {
			e.Pause()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, turns)
	assert.False(t, e.Working())
}

func TestWorkRespectsContextCancellation(t *testing.T) {
	provider := &fakeProvider{responses: []string{"thinking, no commands"}}
	act := newFakeActuator()
	e := newTestEngine(t, provider, act)

	ctx, cancel := context.WithCancel(context.Background())
	turns := 0
	err := e.Work(ctx, func(response string, messages []contextstore.Message) error {
		turns++
		cancel()
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 1, turns)
}

func TestSummarizationTriggersAtWordBudget(t *testing.T) {
	provider := &fakeProvider{responses: []string{"one two three four five six seven eight nine ten"}}
	act := newFakeActuator()
	store, err := contextstore.Open(filepath.Join(t.TempDir(), "agent-1"), contextstore.WithMaxWords(5), contextstore.WithPreserveLast(1))
	require.NoError(t, err)
	e, err := New(store, provider, act)
	require.NoError(t, err)

	_, err = e.Turn(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.summaries)

	msgs := e.store.Messages()
	assert.True(t, strings.HasPrefix(msgs[0].Content[0].Text, "SUMMARIZED CONTEXT: "))
}
