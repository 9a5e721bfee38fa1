package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

func TestMergeFillOpensLot(t *testing.T) {
	now := time.Now().UTC()
	got := mergeFill(schema.Position{}, Fill{
		InstrumentKey: "NSE:SBIN",
		Symbol:        "SBIN",
		Quantity:      10,
		Price:         decimal.NewFromInt(100),
		StrategyID:    "S1",
	}, now)

	if got.Quantity != 10 {
		t.Fatalf("quantity = %d, want 10", got.Quantity)
	}
	if !got.AveragePrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("average price = %s, want 100", got.AveragePrice)
	}
	if got.OwnerStrategyID != "S1" {
		t.Fatalf("owner = %q, want S1", got.OwnerStrategyID)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated at = %s, want %s", got.UpdatedAt, now)
	}
}

func TestMergeFillReweightsWhenAdding(t *testing.T) {
	existing := schema.Position{
		InstrumentKey: "NSE:SBIN",
		Quantity:      10,
		AveragePrice:  decimal.NewFromInt(100),
	}
	got := mergeFill(existing, Fill{
		InstrumentKey: "NSE:SBIN",
		Quantity:      10,
		Price:         decimal.NewFromInt(110),
	}, time.Now().UTC())

	if got.Quantity != 20 {
		t.Fatalf("quantity = %d, want 20", got.Quantity)
	}
	if !got.AveragePrice.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("average price = %s, want 105", got.AveragePrice)
	}
}

func TestMergeFillReduceKeepsEntryPrice(t *testing.T) {
	existing := schema.Position{
		InstrumentKey: "NSE:SBIN",
		Quantity:      10,
		AveragePrice:  decimal.NewFromInt(100),
	}
	got := mergeFill(existing, Fill{
		InstrumentKey: "NSE:SBIN",
		Quantity:      -4,
		Price:         decimal.NewFromInt(120),
	}, time.Now().UTC())

	if got.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", got.Quantity)
	}
	if !got.AveragePrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("average price = %s, want 100", got.AveragePrice)
	}
}

func TestMergeFillFlattenZeroesPrice(t *testing.T) {
	existing := schema.Position{
		InstrumentKey: "NSE:SBIN",
		Quantity:      10,
		AveragePrice:  decimal.NewFromInt(100),
	}
	got := mergeFill(existing, Fill{
		InstrumentKey: "NSE:SBIN",
		Quantity:      -10,
		Price:         decimal.NewFromInt(120),
	}, time.Now().UTC())

	if got.Quantity != 0 {
		t.Fatalf("quantity = %d, want 0", got.Quantity)
	}
	if !got.AveragePrice.IsZero() {
		t.Fatalf("average price = %s, want 0", got.AveragePrice)
	}
}

func TestMergeFillFlipRestartsLotAtFillPrice(t *testing.T) {
	existing := schema.Position{
		InstrumentKey: "NSE:SBIN",
		Quantity:      10,
		AveragePrice:  decimal.NewFromInt(100),
	}
	got := mergeFill(existing, Fill{
		InstrumentKey: "NSE:SBIN",
		Quantity:      -15,
		Price:         decimal.NewFromInt(95),
	}, time.Now().UTC())

	if got.Quantity != -5 {
		t.Fatalf("quantity = %d, want -5", got.Quantity)
	}
	if !got.AveragePrice.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("average price = %s, want 95", got.AveragePrice)
	}
}

func TestMergeFillKeepsOwnerWhenFillIsAnonymous(t *testing.T) {
	existing := schema.Position{
		InstrumentKey:   "NSE:SBIN",
		Quantity:        10,
		AveragePrice:    decimal.NewFromInt(100),
		OwnerStrategyID: "S1",
	}
	got := mergeFill(existing, Fill{
		InstrumentKey: "NSE:SBIN",
		Quantity:      5,
		Price:         decimal.NewFromInt(100),
	}, time.Now().UTC())

	if got.OwnerStrategyID != "S1" {
		t.Fatalf("owner = %q, want S1", got.OwnerStrategyID)
	}
}
