// Package users resolves channel identities to configured user profiles.
package users

import (
	"os"
	"path/filepath"

	"github.com/januslabs/janus/internal/config"
)

// Profile is a resolved user with their policy and optional profile doc.
type Profile struct {
	ID          string
	DisplayName string
	Tools       config.PolicyConfig
	Skills      config.PolicyConfig
	Content     string
	ProfileDoc  string
}

// Resolver matches inbound identities against the configured user list.
type Resolver struct {
	users   []config.UserConfig
	homeDir string
}

// NewResolver builds a resolver over the configured users. homeDir is the
// janus home holding per-user profile documents.
func NewResolver(users []config.UserConfig, homeDir string) *Resolver {
	return &Resolver{users: users, homeDir: homeDir}
}

// Resolve finds the user for a channel identity. Stable channel user ids
// match first; usernames are the fallback. Returns nil when unknown.
func (r *Resolver) Resolve(channel, channelUserID, channelUsername string) *Profile {
	if channelUserID != "" {
		for _, u := range r.users {
			for _, id := range u.Identities {
				if id.Channel == channel && id.UserID != "" && id.UserID == channelUserID {
					return r.profile(u)
				}
			}
		}
	}
	if channelUsername != "" {
		for _, u := range r.users {
			for _, id := range u.Identities {
				if id.Channel == channel && id.Username != "" && id.Username == channelUsername {
					return r.profile(u)
				}
			}
		}
	}
	return nil
}

// ByID looks a user up directly by their configured id.
func (r *Resolver) ByID(userID string) *Profile {
	for _, u := range r.users {
		if u.ID == userID {
			return r.profile(u)
		}
	}
	return nil
}

func (r *Resolver) profile(u config.UserConfig) *Profile {
	p := &Profile{
		ID:          u.ID,
		DisplayName: u.Name,
		Tools:       u.Tools,
		Skills:      u.Skills,
		Content:     u.Content,
	}
	if p.DisplayName == "" {
		p.DisplayName = u.ID
	}
	if doc, err := os.ReadFile(r.ProfileDocPath(u.ID)); err == nil {
		p.ProfileDoc = string(doc)
	}
	return p
}

// ProfileDocPath returns the PROFILE.md location for a user.
func (r *Resolver) ProfileDocPath(userID string) string {
	return filepath.Join(r.homeDir, "users", userID, "PROFILE.md")
}

// MemoryDir returns the per-user memory directory.
func (r *Resolver) MemoryDir(userID string) string {
	return filepath.Join(r.homeDir, "users", userID, "memory")
}
