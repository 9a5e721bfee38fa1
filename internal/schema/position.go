package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a cached instrument position. Quantity is signed: positive
// long, negative short. OwnerStrategyID is empty for manual positions.
type Position struct {
	InstrumentKey   string          `json:"instrumentKey"`
	Symbol          string          `json:"symbol"`
	Quantity        int64           `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"averagePrice"`
	OwnerStrategyID string          `json:"ownerStrategyId,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// BrokerPosition is the broker-reported view of a position.
type BrokerPosition struct {
	InstrumentKey string
	Symbol        string
	Quantity      int64
	AveragePrice  decimal.Decimal
}

// MismatchType classifies a cached-vs-broker position difference.
type MismatchType uint8

const (
	MismatchQuantity MismatchType = iota + 1
	MismatchMissingLocal
	MismatchMissingBroker
	MismatchPriceDrift
)

// String returns the canonical name of the mismatch type.
func (t MismatchType) String() string {
	switch t {
	case MismatchQuantity:
		return "QUANTITY_MISMATCH"
	case MismatchMissingLocal:
		return "MISSING_LOCAL"
	case MismatchMissingBroker:
		return "MISSING_BROKER"
	case MismatchPriceDrift:
		return "PRICE_DRIFT"
	default:
		return "UNKNOWN"
	}
}

// Resolution is the policy applied to a mismatch.
type Resolution uint8

const (
	ResolveAutoSync Resolution = iota + 1
	ResolveAlertOnly
	ResolvePauseStrategy
)

// String returns the canonical name of the resolution.
func (r Resolution) String() string {
	switch r {
	case ResolveAutoSync:
		return "AUTO_SYNC"
	case ResolveAlertOnly:
		return "ALERT_ONLY"
	case ResolvePauseStrategy:
		return "PAUSE_STRATEGY"
	default:
		return "UNKNOWN"
	}
}

// PositionMismatch is one detected difference, produced fresh per run.
type PositionMismatch struct {
	InstrumentKey string       `json:"instrumentKey"`
	Type          MismatchType `json:"type"`
	Resolution    Resolution   `json:"resolution"`
	BrokerQty     int64        `json:"brokerQty"`
	LocalQty      int64        `json:"localQty"`
	Resolved      bool         `json:"resolved"`
	Detail        string       `json:"detail,omitempty"`
}

// ReconcileTrigger names what started a reconciliation run.
type ReconcileTrigger string

const (
	TriggerScheduled ReconcileTrigger = "SCHEDULED"
	TriggerReconnect ReconcileTrigger = "RECONNECT"
	TriggerManual    ReconcileTrigger = "MANUAL"
	TriggerStartup   ReconcileTrigger = "STARTUP"
)

// ReconciliationResult is the immutable outcome of one reconciliation run.
type ReconciliationResult struct {
	Timestamp      time.Time          `json:"timestamp"`
	Trigger        ReconcileTrigger   `json:"trigger"`
	BrokerCount    int                `json:"brokerCount"`
	LocalCount     int                `json:"localCount"`
	MatchedCount   int                `json:"matchedCount"`
	ResolvedCount  int                `json:"resolvedCount"`
	Mismatches     []PositionMismatch `json:"mismatches"`
	Duration       time.Duration      `json:"duration"`
}

// MismatchCount returns the number of detected mismatches.
func (r ReconciliationResult) MismatchCount() int { return len(r.Mismatches) }

// Clean reports whether the run found no differences.
func (r ReconciliationResult) Clean() bool { return len(r.Mismatches) == 0 }
