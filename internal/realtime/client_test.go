package realtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsOnConnectAndReceivesFrames(t *testing.T) {
	f := newEngineFixture(t, fixedClock{period: 1, ok: true}, nil)
	frames := make(chan Frame, 4)

	client := NewClient(ClientConfig{
		URL:        "ws" + strings.TrimPrefix(f.server.URL, "http") + "/",
		Origin:     f.server.URL,
		Token:      "faculty-f1",
		RetryDelay: 20 * time.Millisecond,
		OnConnect: func(c *Client) {
			assert.NoError(t, c.Send("boot", ScanStart{}))
		},
		OnFrame: func(frame Frame) { frames <- frame },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case frame := <-frames:
		assert.Equal(t, TypeScanStarted, frame.Type)
		assert.Equal(t, "boot", frame.RequestID)
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
	}
	assert.True(t, client.Connected())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop")
	}
	assert.False(t, client.Connected())
	assert.ErrorIs(t, client.Send("late", ScanStop{}), ErrNotConnected)
}

func TestClientRetriesUntilCancelled(t *testing.T) {
	client := NewClient(ClientConfig{
		URL:        "ws://127.0.0.1:1/",
		RetryDelay: 10 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, client.Run(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
