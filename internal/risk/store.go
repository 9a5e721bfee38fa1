package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyAggregate is the persisted per-day risk state. The kill switch
// carries across days until an operator clears it; realized P&L is scoped
// to its trading day.
type DailyAggregate struct {
	Date        string          `gorm:"column:date;primaryKey" json:"date"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric" json:"realizedPnl"`
	KillSwitch  bool            `gorm:"column:kill_switch" json:"killSwitch"`
	KillReason  string          `gorm:"column:kill_reason" json:"killReason,omitempty"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName names the daily risk aggregate table.
func (DailyAggregate) TableName() string { return "risk_daily" }

// TradingDay formats the aggregate key for an instant.
func TradingDay(now time.Time) string {
	return now.Format("2006-01-02")
}

// Store persists daily risk aggregates.
type Store struct {
	db *gorm.DB
}

// NewStore creates a durable risk store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Latest returns the most recent aggregate row, reporting whether one
// exists.
func (s *Store) Latest(ctx context.Context) (DailyAggregate, bool, error) {
	var row DailyAggregate
	err := s.db.WithContext(ctx).Order("date DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DailyAggregate{}, false, nil
	}
	if err != nil {
		return DailyAggregate{}, false, err
	}
	return row, true, nil
}

// Save upserts the aggregate for its day.
func (s *Store) Save(ctx context.Context, agg DailyAggregate) error {
	agg.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&agg).Error
}
