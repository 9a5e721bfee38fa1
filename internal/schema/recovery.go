package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecoveryResult aggregates one startup recovery run.
type RecoveryResult struct {
	RunID              string          `json:"runId"`
	StartedAt          time.Time       `json:"startedAt"`
	Duration           time.Duration   `json:"duration"`
	RestoredPnL        decimal.Decimal `json:"restoredPnl"`
	KillSwitchActive   bool            `json:"killSwitchActive"`
	IncompleteGroups   int             `json:"incompleteGroups"`
	PositionsSynced    int             `json:"positionsSynced"`
	StrategiesResumed  int             `json:"strategiesResumed"`
	StrategiesSkipped  int             `json:"strategiesSkipped"`
	Success            bool            `json:"success"`
	Err                string          `json:"error,omitempty"`
}
