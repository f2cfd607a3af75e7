package hub

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codespaceDrifter/intvrface/sandbox"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(t.TempDir(), sandbox.DefaultConfig(), ModelConfig{Model: "claude-sonnet-4-5", MaxWords: 30000, PreserveLast: 5})
	require.NoError(t, err)
	return r
}

func TestNewEmptyRegistryHasNoAgents(t *testing.T) {
	r := newTestRegistry(t)
	assert.Empty(t, r.List())
}

func TestCreateRegistersAgent(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "agent-1", list[0].Name)
	assert.Equal(t, 6081, list[0].NovncPort)
	assert.False(t, list[0].ContainerOn)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))
	assert.Error(t, r.Create(context.Background(), "agent-1", 6082))
}

func TestCreatePersistsToAgentsJSON(t *testing.T) {
	dataRoot := t.TempDir()
	r, err := New(dataRoot, sandbox.DefaultConfig(), ModelConfig{Model: "claude-sonnet-4-5", MaxWords: 30000, PreserveLast: 5})
	require.NoError(t, err)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))

	data, err := os.ReadFile(filepath.Join(dataRoot, "agents.json"))
	require.NoError(t, err)

	var saved []persistedAgent
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, "agent-1", saved[0].Name)
	assert.Equal(t, 6081, saved[0].NovncPort)
}

func TestReloadRebuildsAgentsFromDisk(t *testing.T) {
	dataRoot := t.TempDir()
	cfg := sandbox.DefaultConfig()
	modelCfg := ModelConfig{Model: "claude-sonnet-4-5", MaxWords: 30000, PreserveLast: 5}

	r1, err := New(dataRoot, cfg, modelCfg)
	require.NoError(t, err)
	require.NoError(t, r1.Create(context.Background(), "agent-1", 6081))

	r2, err := New(dataRoot, cfg, modelCfg)
	require.NoError(t, err)

	list := r2.List()
	require.Len(t, list, 1)
	assert.Equal(t, "agent-1", list[0].Name)
	assert.Equal(t, 6081, list[0].NovncPort)
}

func TestChatUnknownAgentErrors(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Chat(context.Background(), "nope", "hello")
	assert.Error(t, err)
}

func TestChatAppendsMessageWithoutChatMode(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))
	require.NoError(t, r.Chat(context.Background(), "agent-1", "hello there"))

	r.mu.Lock()
	entry := r.agents["agent-1"]
	r.mu.Unlock()
	msgs := entry.engine.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Content[0].Text)
}

func TestPauseUnknownAgentErrors(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.PauseAgent("nope"))
}

func TestDispatchUnknownCommandRepliesError(t *testing.T) {
	r := newTestRegistry(t)
	var got errorMessage
	r.Dispatch(context.Background(), []byte(`{"cmd":"bogus"}`), func(reply any) {
		got = reply.(errorMessage)
	})
	assert.Equal(t, "error", got.Type)
}

func TestDispatchMalformedJSONRepliesError(t *testing.T) {
	r := newTestRegistry(t)
	var got errorMessage
	r.Dispatch(context.Background(), []byte(`not json`), func(reply any) {
		got = reply.(errorMessage)
	})
	assert.Equal(t, "error", got.Type)
}

func TestDispatchListBroadcastsAgents(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))

	var got agentsMessage
	r.SetBroadcast(func(msg any) { got = msg.(agentsMessage) })

	r.Dispatch(context.Background(), []byte(`{"cmd":"list"}`), func(any) {})
	require.Len(t, got.Agents, 1)
	assert.Equal(t, "agent-1", got.Agents[0].Name)
}

func TestDispatchChatBroadcastsContextNotAgents(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))

	var got any
	r.SetBroadcast(func(msg any) { got = msg })

	r.Dispatch(context.Background(), []byte(`{"cmd":"chat","name":"agent-1","text":"hi there"}`), func(any) {})

	ctxMsg, ok := got.(contextMessage)
	require.True(t, ok, "expected a contextMessage broadcast, got %T", got)
	assert.Equal(t, "context", ctxMsg.Type)
	assert.Equal(t, "agent-1", ctxMsg.Name)
	require.Len(t, ctxMsg.Messages, 1)
	assert.Equal(t, "hi there", ctxMsg.Messages[0].Content[0].Text)
}

func TestDispatchChatUnknownAgentRepliesError(t *testing.T) {
	r := newTestRegistry(t)
	var got errorMessage
	r.Dispatch(context.Background(), []byte(`{"cmd":"chat","name":"nope","text":"hi"}`), func(reply any) {
		got = reply.(errorMessage)
	})
	assert.Equal(t, "error", got.Type)
}

func TestDispatchGetContextUnknownAgentRepliesError(t *testing.T) {
	r := newTestRegistry(t)
	var got errorMessage
	r.Dispatch(context.Background(), []byte(`{"cmd":"get_context","name":"nope"}`), func(reply any) {
		got = reply.(errorMessage)
	})
	assert.Equal(t, "error", got.Type)
}

func TestDispatchGetContextReturnsMessages(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Create(context.Background(), "agent-1", 6081))
	require.NoError(t, r.Chat(context.Background(), "agent-1", "hi"))

	var got contextMessage
	r.Dispatch(context.Background(), []byte(`{"cmd":"get_context","name":"agent-1"}`), func(reply any) {
		got = reply.(contextMessage)
	})
	assert.Equal(t, "context", got.Type)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content[0].Text)
}
