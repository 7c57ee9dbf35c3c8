package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedWorkspaceCreatesSkeleton(t *testing.T) {
	dir := t.TempDir()
	created, err := SeedWorkspace(dir)
	require.NoError(t, err)
	require.Len(t, created, 4)

	for _, name := range []string{AgentsFile, ProjectFile, HeartbeatFile, MemoryFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
	for _, sub := range []string{"memory", "sessions", "skills", ".janus"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestSeedDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := SeedWorkspace(dir)
	require.NoError(t, err)

	custom := filepath.Join(dir, AgentsFile)
	require.NoError(t, os.WriteFile(custom, []byte("my rules"), 0o644))

	created, err := SeedWorkspace(dir)
	require.NoError(t, err)
	require.Empty(t, created)

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	require.Equal(t, "my rules", string(data))
}

func TestSeedHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".janus")
	require.NoError(t, SeedHome(home))
	data, err := os.ReadFile(filepath.Join(home, EgoFile))
	require.NoError(t, err)
	require.Contains(t, string(data), "Janus")
}
