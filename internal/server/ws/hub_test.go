package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avask/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubBus serves one canned subscription channel.
type stubBus struct {
	ch chan []byte
}

func (b *stubBus) Publish(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func TestDeliverEvictsOldestWhenBufferFull(t *testing.T) {
	h := NewHub(&stubBus{}, "monitor", testLogger())
	c := &client{send: make(chan []byte, 3)}

	for _, m := range []string{"m1", "m2", "m3"} {
		h.deliver(c, []byte(m))
	}
	// Buffer is full: the oldest message makes room for the newest.
	h.deliver(c, []byte("m4"))

	var got []string
	for len(c.send) > 0 {
		got = append(got, string(<-c.send))
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, got)
}

func TestDeliverKeepsOrderWhenBufferHasRoom(t *testing.T) {
	h := NewHub(&stubBus{}, "monitor", testLogger())
	c := &client{send: make(chan []byte, 3)}

	h.deliver(c, []byte("m1"))
	h.deliver(c, []byte("m2"))

	assert.Equal(t, "m1", string(<-c.send))
	assert.Equal(t, "m2", string(<-c.send))
}

func TestRelayChannelStopsOnCancelWithFullBroadcast(t *testing.T) {
	bus := &stubBus{ch: make(chan []byte, 1)}
	h := NewHub(bus, "monitor", testLogger())

	// Fill the broadcast buffer so the relay's forward cannot proceed.
	for i := 0; i < cap(h.broadcast); i++ {
		h.broadcast <- broadcastMsg{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.relayChannel(ctx, domain.ChannelMarket)
		close(done)
	}()

	bus.ch <- []byte("update")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay goroutine did not stop after cancellation")
	}
}
