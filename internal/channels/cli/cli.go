// Package cli is the interactive terminal channel: a line-based REPL that
// feeds the bus and prints replies, including streamed chunks.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/januslabs/janus/internal/bus"
	"github.com/januslabs/janus/internal/config"
)

const (
	// ChatID is the single conversation the terminal maps to.
	ChatID = "default"

	channelName = "cli"

	confirmTimeout = 30 * time.Second
)

// Channel is the terminal adapter. One goroutine reads lines; the REPL and
// the confirmation prompt take turns consuming them.
type Channel struct {
	bus     *bus.Bus
	in      io.Reader
	out     io.Writer
	history string

	lines chan string
	done  chan struct{} // signalled when a reply finished printing

	streaming bool
}

type Option func(*Channel)

func WithIO(in io.Reader, out io.Writer) Option {
	return func(c *Channel) { c.in, c.out = in, out }
}

func WithHistoryPath(path string) Option {
	return func(c *Channel) { c.history = path }
}

func New(b *bus.Bus, opts ...Option) *Channel {
	c := &Channel{
		bus:     b,
		in:      os.Stdin,
		out:     os.Stdout,
		history: filepath.Join(config.HomeDir(), "history"),
		lines:   make(chan string),
		done:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	b.RegisterHandler(channelName, c.deliver)
	return c
}

// deliver prints outbound traffic. Chunks print without a newline so the
// reply builds up in place; the final message or stream end closes the line
// and releases the REPL.
func (c *Channel) deliver(msg bus.OutboundMessage) error {
	switch msg.Type {
	case bus.TypeChunk:
		c.streaming = true
		fmt.Fprint(c.out, msg.Content)
	case bus.TypeStreamEnd:
		fmt.Fprintln(c.out)
		c.signalDone()
	default:
		if c.streaming {
			// The streamed text already covered the content.
			c.streaming = false
		} else {
			fmt.Fprintln(c.out, msg.Content)
		}
		c.signalDone()
	}
	return nil
}

func (c *Channel) signalDone() {
	c.streaming = false
	select {
	case c.done <- struct{}{}:
	default:
	}
}

// Run drives the REPL until EOF, "exit", or cancellation.
func (c *Channel) Run(ctx context.Context) error {
	go c.readLines(ctx)

	fmt.Fprintln(c.out, "janus ready. Type a message, or 'exit' to quit.")
	for {
		fmt.Fprint(c.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-c.lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		c.appendHistory(line)

		err := c.bus.PublishInbound(ctx, bus.InboundMessage{
			ID:        uuid.NewString(),
			Channel:   channelName,
			ChatID:    ChatID,
			Content:   line,
			Timestamp: time.Now(),
		})
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
		}
	}
}

func (c *Channel) readLines(ctx context.Context) {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// Confirm asks the user to approve a gated action. The REPL is parked
// waiting for the reply, so the next input line belongs to this prompt.
func (c *Channel) Confirm(ctx context.Context, prompt string) bool {
	fmt.Fprintf(c.out, "\nConfirm %s? [y/N] ", prompt)

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		fmt.Fprintln(c.out, "(timed out, denied)")
		return false
	case line, ok := <-c.lines:
		if !ok {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func (c *Channel) appendHistory(line string) {
	if c.history == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.history), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(c.history, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Debug("history append failed", "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
