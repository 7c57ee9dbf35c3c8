package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusDispatchRoutesByChannel(t *testing.T) {
	b := New(10)

	var mu sync.Mutex
	var delivered []OutboundMessage
	b.RegisterHandler("cli", func(msg OutboundMessage) error {
		mu.Lock()
		delivered = append(delivered, msg)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Dispatch(ctx)

	require.NoError(t, b.PublishOutbound(ctx, OutboundMessage{Channel: "cli", ChatID: "x", Content: "hi", Type: TypeMessage}))
	// Missing handler: dropped, dispatcher keeps going.
	require.NoError(t, b.PublishOutbound(ctx, OutboundMessage{Channel: "nowhere", ChatID: "y", Content: "lost"}))
	require.NoError(t, b.PublishOutbound(ctx, OutboundMessage{Channel: "cli", ChatID: "x", Content: "again", Type: TypeMessage}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "hi", delivered[0].Content)
	require.Equal(t, "again", delivered[1].Content)
}

func TestBusStreamToBypassesQueue(t *testing.T) {
	b := New(1)

	var mu sync.Mutex
	var chunks []string
	b.RegisterHandler("cli", func(msg OutboundMessage) error {
		mu.Lock()
		chunks = append(chunks, string(msg.Type)+":"+msg.Content)
		mu.Unlock()
		return nil
	})

	// No dispatcher running: StreamTo must still deliver.
	b.StreamTo("cli", "x", TypeChunk, "a")
	b.StreamTo("cli", "x", TypeChunk, "b")
	b.StreamTo("cli", "x", TypeStreamEnd, "")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"chunk:a", "chunk:b", "stream_end:"}, chunks)
}

func TestBusStreamToMissingHandler(t *testing.T) {
	b := New(1)
	// Must not panic.
	b.StreamTo("ghost", "x", TypeChunk, "a")
}
