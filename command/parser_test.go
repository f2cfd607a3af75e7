package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cmds := Parse("<func>TYPE</func><param>hi there</param>")
	require.Len(t, cmds, 1)
	assert.Equal(t, "TYPE", cmds[0].Verb)
	assert.Equal(t, []string{"hi there"}, cmds[0].Args)
}

func TestParseLowercasesVerbUppercased(t *testing.T) {
	cmds := Parse("<func>look</func>")
	require.Len(t, cmds, 1)
	assert.Equal(t, "LOOK", cmds[0].Verb)
}

func TestParseNoArgs(t *testing.T) {
	cmds := Parse("<func>LOOK</func>")
	require.Len(t, cmds, 1)
	assert.Empty(t, cmds[0].Args)
}

func TestParseMultipleParams(t *testing.T) {
	cmds := Parse("<func>MOVE</func><param>100</param><param>200</param>")
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"100", "200"}, cmds[0].Args)
}

func TestParseMultipleCommands(t *testing.T) {
	text := "<func>TERM</func>some text<func>LOOK</func>"
	cmds := Parse(text)
	require.Len(t, cmds, 2)
	assert.Equal(t, "TERM", cmds[0].Verb)
	assert.Equal(t, "LOOK", cmds[1].Verb)
}

func TestParseParamSpansNewlines(t *testing.T) {
	cmds := Parse("<func>WRITE</func><param>file.txt</param><param>line one\nline two</param>")
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"file.txt", "line one\nline two"}, cmds[0].Args)
}

func TestParseIgnoresPlainText(t *testing.T) {
	cmds := Parse("just thinking out loud, no commands here")
	assert.Empty(t, cmds)
}

func TestFileVerbMinArgs(t *testing.T) {
	for verb, want := range MinArgs {
		assert.True(t, FileVerbs[verb], "%s should be a file verb", verb)
		assert.Greater(t, want, 0)
	}
	assert.Equal(t, 1, MinArgs["READ"])
	assert.Equal(t, 2, MinArgs["WRITE"])
	assert.Equal(t, 3, MinArgs["EDIT"])
}

func TestVerbClassesAreDisjoint(t *testing.T) {
	classes := []map[string]bool{FileVerbs, KeyboardVerbs, MouseVerbs, ExplicitVerbs, ControlVerbs}
	seen := map[string]bool{}
	for _, class := range classes {
		for verb := range class {
			assert.False(t, seen[verb], "%s appears in more than one verb class", verb)
			seen[verb] = true
		}
	}
}

func TestSplitNarrationAndCommands(t *testing.T) {
	text := "Let me look.<func>LOOK</func>Now I'll type.<func>TYPE</func><param>hello</param>"
	segs := Split(text)
	require.Len(t, segs, 4)
	assert.False(t, segs[0].IsCommand)
	assert.Equal(t, "Let me look.", segs[0].Text)
	assert.True(t, segs[1].IsCommand)
	assert.Equal(t, "<func>LOOK</func>", segs[1].Text)
	assert.False(t, segs[2].IsCommand)
	assert.Equal(t, "Now I'll type.", segs[2].Text)
	assert.True(t, segs[3].IsCommand)
}

func TestSplitElidesWhitespaceOnlyNarration(t *testing.T) {
	text := "<func>LOOK</func>   \n  <func>TERM</func>"
	segs := Split(text)
	require.Len(t, segs, 2)
	assert.True(t, segs[0].IsCommand)
	assert.True(t, segs[1].IsCommand)
}

func TestSplitPureNarration(t *testing.T) {
	segs := Split("no commands at all")
	require.Len(t, segs, 1)
	assert.False(t, segs[0].IsCommand)
	assert.Equal(t, "no commands at all", segs[0].Text)
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Empty(t, Split("   \n  "))
}
