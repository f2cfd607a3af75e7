package modeladapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codespaceDrifter/intvrface/contextstore"
)

func TestNewClaudeDefaults(t *testing.T) {
	c := NewClaude("test-key")
	assert.Equal(t, "claude-sonnet-4-5", c.model)
	assert.EqualValues(t, 4096, c.maxTokens)
	assert.EqualValues(t, 1024, c.summaryMaxTokens)
}

func TestNewClaudeOptions(t *testing.T) {
	c := NewClaude("test-key", WithModel("claude-opus-4"), WithMaxTokens(8192), WithSummaryMaxTokens(2048))
	assert.Equal(t, "claude-opus-4", c.model)
	assert.EqualValues(t, 8192, c.maxTokens)
	assert.EqualValues(t, 2048, c.summaryMaxTokens)
}

func TestToAnthropicMessagesRoleMapping(t *testing.T) {
	msgs := []contextstore.Message{
		{Role: contextstore.RoleUser, Content: []contextstore.Block{contextstore.TextBlock("hi")}},
		{Role: contextstore.RoleAssistant, Content: []contextstore.Block{contextstore.TextBlock("hello")}},
	}
	out := toAnthropicMessages(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
}

func TestToAnthropicMessagesImageBlock(t *testing.T) {
	msgs := []contextstore.Message{
		{Role: contextstore.RoleUser, Content: []contextstore.Block{contextstore.ImageBlock([]byte{1, 2, 3})}},
	}
	out := toAnthropicMessages(msgs)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)
}

func TestProviderInterfaceSatisfied(t *testing.T) {
	var _ Provider = NewClaude("test-key")
}
