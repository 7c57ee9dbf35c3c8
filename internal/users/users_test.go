package users

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/januslabs/janus/internal/config"
)

func testUsers() []config.UserConfig {
	return []config.UserConfig{
		{
			ID:   "wt",
			Name: "WT",
			Identities: []config.IdentityConfig{
				{Channel: "telegram", UserID: "1001", Username: "wt_dev"},
			},
			Tools: config.PolicyConfig{Deny: []string{"exec"}},
		},
		{
			ID: "monika",
			Identities: []config.IdentityConfig{
				{Channel: "telegram", Username: "monika_h"},
			},
		},
	}
}

func TestResolveByStableID(t *testing.T) {
	r := NewResolver(testUsers(), t.TempDir())
	p := r.Resolve("telegram", "1001", "")
	require.NotNil(t, p)
	require.Equal(t, "wt", p.ID)
	require.Equal(t, []string{"exec"}, p.Tools.Deny)
}

func TestResolveStableIDBeatsUsername(t *testing.T) {
	r := NewResolver(testUsers(), t.TempDir())
	// Stable id points at wt even with monika's username attached.
	p := r.Resolve("telegram", "1001", "monika_h")
	require.NotNil(t, p)
	require.Equal(t, "wt", p.ID)
}

func TestResolveByUsernameFallback(t *testing.T) {
	r := NewResolver(testUsers(), t.TempDir())
	p := r.Resolve("telegram", "9999", "monika_h")
	require.NotNil(t, p)
	require.Equal(t, "monika", p.ID)
	// No display name configured, falls back to id.
	require.Equal(t, "monika", p.DisplayName)
}

func TestResolveUnknown(t *testing.T) {
	r := NewResolver(testUsers(), t.TempDir())
	require.Nil(t, r.Resolve("telegram", "404", "nobody"))
	require.Nil(t, r.Resolve("discord", "1001", "wt_dev"))
}

func TestProfileDocLoaded(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "users", "wt")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PROFILE.md"),
		[]byte("# WT\nPrefers terse replies."), 0o644))

	r := NewResolver(testUsers(), home)
	p := r.ByID("wt")
	require.NotNil(t, p)
	require.Contains(t, p.ProfileDoc, "terse replies")
}
