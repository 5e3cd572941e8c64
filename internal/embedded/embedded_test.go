package embedded

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallKeepsUserFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0755))
	custom := filepath.Join(dir, "prompts", "planner.md")
	require.NoError(t, os.WriteFile(custom, []byte("my planner"), 0644))

	require.NoError(t, Install(dir))

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "my planner", string(data))

	for _, name := range []string{"config.toml", "prompts/generator.md", "schemas/plan.schema.json"} {
		want, err := ReadFile(name)
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, string(want), string(got), name)
	}

	require.NoError(t, Install(dir), "installing twice is harmless")
}
