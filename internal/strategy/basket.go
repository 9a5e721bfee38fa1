package strategy

import (
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// KindPremiumBasket is the discriminator for the premium basket strategy.
const KindPremiumBasket = "premium_basket"

// PremiumBasketConfig is the persisted form of a premium basket.
type PremiumBasketConfig struct {
	ID           string          `json:"id"`
	Legs         []string        `json:"legs"`
	EntryPremium decimal.Decimal `json:"entryPremium"`
}

// PremiumBasket holds a basket of option legs and the credit collected at
// entry. It carries no trading logic; the engine pauses and resumes it and
// recovery restores its legs after a restart.
type PremiumBasket struct {
	mu           sync.RWMutex
	id           string
	legs         []string
	entryPremium decimal.Decimal
}

// NewPremiumBasket validates the config and builds the basket.
func NewPremiumBasket(cfg PremiumBasketConfig) (*PremiumBasket, error) {
	if cfg.ID == "" {
		return nil, errors.New("premium basket: empty id")
	}
	if len(cfg.Legs) == 0 {
		return nil, errors.New("premium basket: no legs")
	}
	legs := make([]string, len(cfg.Legs))
	copy(legs, cfg.Legs)
	return &PremiumBasket{
		id:           cfg.ID,
		legs:         legs,
		entryPremium: cfg.EntryPremium,
	}, nil
}

// DecodePremiumBasket is the registry factory for KindPremiumBasket.
func DecodePremiumBasket(raw json.RawMessage) (Strategy, error) {
	var cfg PremiumBasketConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode premium basket config")
	}
	return NewPremiumBasket(cfg)
}

func (b *PremiumBasket) ID() string   { return b.id }
func (b *PremiumBasket) Kind() string { return KindPremiumBasket }

// Legs returns the instrument keys of the basket's legs.
func (b *PremiumBasket) Legs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.legs))
	copy(out, b.legs)
	return out
}

// Restore reloads the basket from cached leg positions, recomputing the
// entry premium from what actually survived the restart.
func (b *PremiumBasket) Restore(legs []schema.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entryPremium = WeightedEntryPremium(legs)
}

// EntryPremium returns the credit per unit collected at entry.
func (b *PremiumBasket) EntryPremium() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entryPremium
}

// Config serializes the basket for snapshot persistence.
func (b *PremiumBasket) Config() (json.RawMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, err := json.Marshal(PremiumBasketConfig{
		ID:           b.id,
		Legs:         b.legs,
		EntryPremium: b.entryPremium,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode premium basket config")
	}
	return raw, nil
}
