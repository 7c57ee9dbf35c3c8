// Package telegram connects the bus to the Telegram Bot API using long
// polling. Streamed replies are rendered as a draft message that gets
// edited in place, throttled per chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/januslabs/janus/internal/bus"
	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/tools"
)

const (
	channelName = "telegram"

	// Telegram rejects messages above this length; longer replies are split.
	maxMessageLen = 4096

	pollTimeoutSec = 30
)

// botAPI is the slice of telego the channel uses. Tests substitute a fake.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, opts ...telego.LongPollingOption) (<-chan telego.Update, error)
}

// Channel is the Telegram adapter.
type Channel struct {
	cfg config.TelegramConfig
	fam config.FamilyConfig
	bus *bus.Bus
	bot botAPI

	throttle time.Duration
	allowed  map[string]bool
	family   map[string]bool

	// Per-chat streaming draft state and confirmation waiters. Streaming
	// chunks for one chat arrive serialized from the agent loop; the maps
	// guard against cross-chat interleaving.
	mu       sync.Mutex
	drafts   map[string]*draft
	limiters map[string]*rate.Limiter
	pending  map[string]chan string
}

type draft struct {
	messageID int
	text      strings.Builder
	sent      string
}

func New(cfg config.Config, b *bus.Bus) (*Channel, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token not configured")
	}
	bot, err := telego.NewBot(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newWithBot(cfg, b, bot), nil
}

func newWithBot(cfg config.Config, b *bus.Bus, bot botAPI) *Channel {
	c := &Channel{
		cfg:      cfg.Telegram,
		fam:      cfg.Family,
		bus:      b,
		bot:      bot,
		throttle: time.Duration(cfg.Streaming.TelegramThrottleMs) * time.Millisecond,
		allowed:  make(map[string]bool),
		family:   make(map[string]bool),
		drafts:   make(map[string]*draft),
		limiters: make(map[string]*rate.Limiter),
		pending:  make(map[string]chan string),
	}
	for _, id := range cfg.Telegram.AllowedChatIDs {
		c.allowed[id] = true
	}
	for _, id := range cfg.Family.GroupChatIDs {
		c.family[id] = true
	}
	b.RegisterHandler(channelName, c.deliver)
	return c
}

// DefaultChatID returns the first allowlisted chat, the destination for
// rewritten system replies.
func (c *Channel) DefaultChatID() string {
	if len(c.cfg.AllowedChatIDs) > 0 {
		return c.cfg.AllowedChatIDs[0]
	}
	return ""
}

// Start long-polls for updates until the context is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        pollTimeoutSec,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram channel connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				c.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if len(c.allowed) > 0 && !c.allowed[chatID] {
		slog.Debug("telegram message from non-allowlisted chat dropped", "chat_id", chatID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// A pending confirmation swallows the next reply from that chat.
	c.mu.Lock()
	waiter := c.pending[chatID]
	delete(c.pending, chatID)
	c.mu.Unlock()
	if waiter != nil {
		waiter <- text
		return
	}

	inbound := bus.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Channel:   channelName,
		ChatID:    chatID,
		Content:   text,
		Timestamp: time.Now(),
	}
	if msg.From != nil {
		inbound.Author = msg.From.Username
		inbound.User = &bus.UserBinding{
			ChannelUserID:   strconv.FormatInt(msg.From.ID, 10),
			ChannelUsername: msg.From.Username,
		}
	}
	if c.family[chatID] && c.fam.ID != "" {
		inbound.Scope = &bus.Scope{Kind: bus.ScopeFamily, ID: c.fam.ID}
	}

	_ = c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(msg.Chat.ID), telego.ChatActionTyping))

	if err := c.bus.PublishInbound(ctx, inbound); err != nil {
		slog.Error("telegram inbound publish failed", "chat_id", chatID, "error", err)
	}
}

// deliver routes outbound traffic: plain messages are sent (split when too
// long), chunks build a throttled draft, stream end flushes it.
func (c *Channel) deliver(msg bus.OutboundMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch msg.Type {
	case bus.TypeChunk:
		return c.appendChunk(ctx, msg.ChatID, msg.Content)
	case bus.TypeStreamEnd:
		return c.finishDraft(ctx, msg.ChatID)
	default:
		c.dropDraft(msg.ChatID)
		return c.sendText(ctx, msg.ChatID, msg.Content)
	}
}

func (c *Channel) sendText(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", chatID, err)
	}
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), part)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (c *Channel) appendChunk(ctx context.Context, chatID, chunk string) error {
	c.mu.Lock()
	d := c.drafts[chatID]
	if d == nil {
		d = &draft{}
		c.drafts[chatID] = d
	}
	d.text.WriteString(chunk)
	lim := c.limiters[chatID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(c.throttle), 1)
		c.limiters[chatID] = lim
	}
	c.mu.Unlock()

	// Skip the edit when the per-chat budget is spent; the text keeps
	// accumulating and a later chunk or the stream end catches up.
	if !lim.Allow() {
		return nil
	}
	return c.syncDraft(ctx, chatID, d)
}

func (c *Channel) finishDraft(ctx context.Context, chatID string) error {
	c.mu.Lock()
	d := c.drafts[chatID]
	delete(c.drafts, chatID)
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return c.syncDraft(ctx, chatID, d)
}

func (c *Channel) dropDraft(chatID string) {
	c.mu.Lock()
	delete(c.drafts, chatID)
	c.mu.Unlock()
}

// syncDraft sends or edits the draft message to match the accumulated text.
func (c *Channel) syncDraft(ctx context.Context, chatID string, d *draft) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", chatID, err)
	}

	c.mu.Lock()
	text := d.text.String()
	if text == d.sent || text == "" {
		c.mu.Unlock()
		return nil
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	messageID := d.messageID
	c.mu.Unlock()

	if messageID == 0 {
		sent, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), text))
		if err != nil {
			return fmt.Errorf("telegram draft send: %w", err)
		}
		c.mu.Lock()
		d.messageID = sent.MessageID
		d.sent = text
		c.mu.Unlock()
		return nil
	}

	_, err = c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("telegram draft edit: %w", err)
	}
	c.mu.Lock()
	d.sent = text
	c.mu.Unlock()
	return nil
}

// Confirm implements the gate confirmer: it messages the chat that asked
// for the action and waits for an approving reply.
func (c *Channel) Confirm(ctx context.Context, prompt string) bool {
	chatID := tools.ChatIDFromCtx(ctx)
	if chatID == "" {
		chatID = c.DefaultChatID()
	}
	if chatID == "" {
		return false
	}

	waiter := make(chan string, 1)
	c.mu.Lock()
	c.pending[chatID] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, chatID)
		c.mu.Unlock()
	}()

	ask := fmt.Sprintf("Confirm %s?\nReply \"yes\" to approve, anything else denies.", prompt)
	if err := c.sendText(ctx, chatID, ask); err != nil {
		slog.Warn("confirmation prompt send failed", "chat_id", chatID, "error", err)
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case reply := <-waiter:
		answer := strings.ToLower(strings.TrimSpace(reply))
		return answer == "yes" || answer == "y"
	}
}

// splitMessage cuts text into parts that fit the Telegram limit, breaking
// at newlines when one is close enough to the boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := limit
		if i := strings.LastIndexByte(text[:limit], '\n'); i > limit/2 {
			cut = i + 1
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
