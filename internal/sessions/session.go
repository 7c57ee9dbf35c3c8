// Package sessions persists conversation history as JSONL transcripts, one
// file per conversation. The first line is a metadata record; every
// following line is one message. Appends rewrite the whole file atomically
// via a temp file and rename, so a crash never leaves a torn transcript.
package sessions

import (
	"fmt"
	"regexp"
	"time"

	"github.com/januslabs/janus/internal/providers"
)

// Session is one conversation's state: its transcript plus rolling metadata.
type Session struct {
	Key      string
	Messages []providers.Message
	Summary  string
	Created  time.Time
	Updated  time.Time

	InputTokens  int64
	OutputTokens int64
}

// metadata is the JSONL header record.
type metadata struct {
	Type         string `json:"_type"`
	Key          string `json:"key"`
	Created      int64  `json:"created"`
	Updated      int64  `json:"updated"`
	MessageCount int    `json:"messageCount"`
	Summary      string `json:"summary,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty"`
}

// Key builds the canonical session key for a conversation.
func Key(channel, chatID string) string {
	return fmt.Sprintf("%s:%s", channel, chatID)
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeKey maps a session key to a safe file stem.
func sanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_")
}

// StripOrphanToolMessages removes tool-role messages from the front of a
// transcript. A transcript loaded mid-conversation can start with tool
// results whose assistant tool calls were trimmed away; providers reject
// such histories.
func StripOrphanToolMessages(msgs []providers.Message) []providers.Message {
	i := 0
	for i < len(msgs) && msgs[i].Role == providers.RoleTool {
		i++
	}
	return msgs[i:]
}
