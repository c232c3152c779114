package domain

import "encoding/json"

// Event types pushed to subscribers over the WebSocket hub.
const (
	EventMarketUpdate = "market_update"
	EventOpportunity  = "arbitrage_opportunity"
	EventExecution    = "trade_execution"
)

// Signal bus channels that carry engine events to the broadcast layer.
const (
	ChannelMarket        = "market"
	ChannelOpportunities = "opportunities"
	ChannelExecutions    = "executions"
)

// Event is the JSON envelope sent to every subscriber:
// {"type":"market_update","data":{...}}.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event envelope ready for publishing.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

// Encode returns the wire form of the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
