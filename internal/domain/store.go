package domain

import "context"

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	Recent(ctx context.Context, limit int) ([]Opportunity, error)
}

// ExecutionStore persists trade executions and their status transitions.
type ExecutionStore interface {
	Insert(ctx context.Context, exec TradeExecution) error
	Update(ctx context.Context, exec TradeExecution) error
	Recent(ctx context.Context, limit int) ([]TradeExecution, error)
}

// SignalBus is the pub/sub fabric between the engine and the broadcast
// layer. Implementations must never block the publisher on slow consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// QuoteCache keeps the latest quote per (venue, pair) for the display path.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote PriceQuote) error
	Quotes(ctx context.Context, pair string) ([]PriceQuote, error)
}

// BlobWriter writes an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
