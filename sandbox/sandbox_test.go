package sandbox

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codespaceDrifter/intvrface"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1280, cfg.ScreenWidth)
	assert.Equal(t, 1024, cfg.ScreenHeight)
	assert.Equal(t, "intvrface-agent:latest", cfg.ImageTag)
}

func TestGeometryString(t *testing.T) {
	s := &Sandbox{cfg: Config{ScreenWidth: 1280, ScreenHeight: 1024}}
	assert.Equal(t, "1280x1024", s.geometry())
}

func TestWorkspacePath(t *testing.T) {
	s := &Sandbox{cfg: Config{WorkspaceRoot: "/data"}, agentID: "agent-1"}
	assert.Equal(t, "/data/agent-1", s.workspace())
}

func TestSandboxErrWrapsAgentAndOp(t *testing.T) {
	s := &Sandbox{agentID: "agent-1"}
	err := s.sandboxErr("start", errors.New("boom"))
	require.Error(t, err)
	var sandboxErr *intvrface.ErrSandbox
	require.ErrorAs(t, err, &sandboxErr)
	assert.Equal(t, "agent-1", sandboxErr.AgentID)
	assert.Equal(t, "start", sandboxErr.Op)
}

func TestSandboxErrNilIsNil(t *testing.T) {
	s := &Sandbox{agentID: "agent-1"}
	assert.NoError(t, s.sandboxErr("start", nil))
}

func TestRenderDockerfileSubstitutesGeometry(t *testing.T) {
	out := renderDockerfile("1920x1080")
	assert.Contains(t, out, "1920x1080x24")
	assert.NotContains(t, out, "{{SCREEN_GEOMETRY}}")
}

func TestRecipeHashStableAndDistinct(t *testing.T) {
	h1 := recipeHash("1280x1024")
	h2 := recipeHash("1280x1024")
	h3 := recipeHash("1920x1080")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestSaveRecipeNoopWhenBuildRootEmpty(t *testing.T) {
	s := &Sandbox{cfg: Config{ScreenWidth: 1280, ScreenHeight: 1024}}
	assert.NoError(t, s.saveRecipe())
}

func TestSaveRecipeWritesDockerfileAndHash(t *testing.T) {
	dir := t.TempDir()
	s := &Sandbox{cfg: Config{ScreenWidth: 1280, ScreenHeight: 1024, BuildRoot: dir}}
	require.NoError(t, s.saveRecipe())

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "1280x1024x24")

	hash, err := os.ReadFile(filepath.Join(dir, "hash"))
	require.NoError(t, err)
	assert.Equal(t, recipeHash("1280x1024"), string(hash))
}

func TestBuildContextContainsDockerfile(t *testing.T) {
	data, err := buildContext("1280x1024")
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(data))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "Dockerfile", hdr.Name)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(tr)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1280x1024x24")
}
