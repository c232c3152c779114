package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout    = 10 * time.Second
	readWait       = 30 * time.Second
	reconnectDelay = 2 * time.Second
)

// venueMessage is the JSON frame a venue feed pushes. Fields beyond these
// are venue-specific noise and ignored.
type venueMessage struct {
	Pair      string  `json:"pair"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Liquidity float64 `json:"liquidity"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// VenueFeed maintains one WebSocket connection to a venue price feed and
// forwards every frame to the normalizer. It reconnects with a fixed delay
// on disconnect and stops when its context is cancelled.
type VenueFeed struct {
	venue      string
	wsURL      string
	pairs      map[string]bool
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewVenueFeed creates a feed for one venue. Only frames for the listed
// pairs are forwarded; an empty list forwards everything.
func NewVenueFeed(venue, wsURL string, pairs []string, n *Normalizer, logger *slog.Logger) *VenueFeed {
	pairSet := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		pairSet[p] = true
	}
	return &VenueFeed{
		venue:      venue,
		wsURL:      wsURL,
		pairs:      pairSet,
		normalizer: n,
		logger:     logger.With(slog.String("component", "venue_feed"), slog.String("venue", venue)),
	}
}

// Run connects and processes frames until ctx is cancelled, reconnecting on
// errors.
func (f *VenueFeed) Run(ctx context.Context) error {
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *VenueFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	f.logger.Info("feed connected", slog.String("url", f.wsURL))

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		f.handleFrame(ctx, data)
	}
}

// handleFrame parses one frame and hands it to the normalizer. Malformed
// frames are dropped here; the normalizer absorbs everything else.
func (f *VenueFeed) handleFrame(ctx context.Context, data []byte) {
	var msg venueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable frame", slog.Int("len", len(data)))
		return
	}
	if msg.Pair == "" {
		return
	}
	if len(f.pairs) > 0 && !f.pairs[msg.Pair] {
		return
	}

	_ = f.normalizer.Ingest(ctx, RawQuote{
		Venue:     f.venue,
		Pair:      msg.Pair,
		Bid:       msg.Bid,
		Ask:       msg.Ask,
		Liquidity: msg.Liquidity,
		Timestamp: time.UnixMilli(msg.Timestamp).UTC(),
	})
}
