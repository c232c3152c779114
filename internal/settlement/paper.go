package settlement

import (
	"context"
	"encoding/json"
	"fmt"
)

// PaperRouter is a fill-at-quote venue adapter for the in-process ledger.
// It decodes the leg payload and reports the balance delta a perfect fill
// at the quoted price would produce: a spend for buys, proceeds for sells.
type PaperRouter struct {
	venue string
}

// NewPaperRouter creates a PaperRouter for the named venue.
func NewPaperRouter(venue string) *PaperRouter {
	return &PaperRouter{venue: venue}
}

// Execute fills one leg at its quoted price.
func (r *PaperRouter) Execute(ctx context.Context, token string, calldata []byte, amount float64) (float64, error) {
	var leg struct {
		Pair  string  `json:"pair"`
		Side  string  `json:"side"`
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(calldata, &leg); err != nil {
		return 0, fmt.Errorf("paper %s: decode leg: %w", r.venue, err)
	}
	if leg.Price <= 0 {
		return 0, fmt.Errorf("paper %s: non-positive price %f", r.venue, leg.Price)
	}

	switch leg.Side {
	case "buy":
		return -leg.Price * amount, nil
	case "sell":
		return leg.Price * amount, nil
	default:
		return 0, fmt.Errorf("paper %s: unknown side %q", r.venue, leg.Side)
	}
}
