package strategy

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// State tracks a live strategy's run state.
type State string

const (
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
)

// Strategy is one live strategy instance. Entry and exit decisions happen
// outside this subsystem; the engine only manages lifecycle, leg
// membership, and restored pricing state.
type Strategy interface {
	ID() string
	Kind() string
	Legs() []string
	Restore(legs []schema.Position)
	Config() (json.RawMessage, error)
}

// WeightedEntryPremium is the quantity-weighted average entry price across
// legs. Leg direction does not matter for the weighting, only size.
func WeightedEntryPremium(legs []schema.Position) decimal.Decimal {
	weight := decimal.Zero
	notional := decimal.Zero
	for _, p := range legs {
		qty := p.Quantity
		if qty < 0 {
			qty = -qty
		}
		w := decimal.NewFromInt(qty)
		weight = weight.Add(w)
		notional = notional.Add(p.AveragePrice.Mul(w))
	}
	if weight.IsZero() {
		return decimal.Zero
	}
	return notional.Div(weight)
}
