package bus

import "time"

// ContextMode selects how much of the system prompt is assembled for a message.
type ContextMode string

const (
	ContextFull    ContextMode = "full"
	ContextMinimal ContextMode = "minimal"
)

// ScopeKind is the tenancy dimension for memory retrieval.
type ScopeKind string

const (
	ScopeUser   ScopeKind = "user"
	ScopeFamily ScopeKind = "family"
)

// Scope narrows memory retrieval to a user or family tenancy.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// UserBinding links an inbound message to a resolved user profile.
type UserBinding struct {
	UserID          string `json:"user_id"`
	DisplayName     string `json:"display_name,omitempty"`
	ChannelUserID   string `json:"channel_user_id,omitempty"`
	ChannelUsername string `json:"channel_username,omitempty"`
}

// InboundMessage is a message received from a channel adapter or
// synthesized by the scheduler (channel == "system").
type InboundMessage struct {
	ID        string       `json:"id"`
	Channel   string       `json:"channel"`
	ChatID    string       `json:"chat_id"`
	Content   string       `json:"content"`
	Author    string       `json:"author,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Mode      ContextMode  `json:"mode,omitempty"`
	User      *UserBinding `json:"user,omitempty"`
	Scope     *Scope       `json:"scope,omitempty"`
}

// OutboundType distinguishes final messages from streaming chunks.
type OutboundType string

const (
	TypeMessage   OutboundType = "message"
	TypeChunk     OutboundType = "chunk"
	TypeStreamEnd OutboundType = "stream_end"
)

// OutboundMessage is a message to be delivered to a channel.
type OutboundMessage struct {
	Channel   string       `json:"channel"`
	ChatID    string       `json:"chat_id"`
	Content   string       `json:"content"`
	Type      OutboundType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}

// Handler delivers an outbound message to a concrete channel.
type Handler func(OutboundMessage) error
