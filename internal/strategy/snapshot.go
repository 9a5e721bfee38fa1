package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is one persisted strategy, reconstructable via the registry
// using the Kind discriminator. LegKeys duplicates the leg membership
// outside the opaque config so recovery can reload positions without
// decoding it.
type Snapshot struct {
	ID        string         `gorm:"column:id;primaryKey" json:"id"`
	Kind      string         `gorm:"column:kind;index" json:"kind"`
	State     string         `gorm:"column:state" json:"state"`
	Resumable bool           `gorm:"column:resumable;index" json:"resumable"`
	Config    datatypes.JSON `gorm:"column:config" json:"config"`
	LegKeys   datatypes.JSON `gorm:"column:leg_keys" json:"legKeys"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName names the strategy snapshot table.
func (Snapshot) TableName() string { return "strategy_snapshots" }

// Legs decodes the snapshot's leg instrument keys.
func (s Snapshot) Legs() ([]string, error) {
	if len(s.LegKeys) == 0 {
		return nil, nil
	}
	var legs []string
	if err := json.Unmarshal(s.LegKeys, &legs); err != nil {
		return nil, errors.Wrap(err, "decode snapshot legs")
	}
	return legs, nil
}

// SnapshotStore persists strategy snapshots.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a durable snapshot store.
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the snapshot taken from a live strategy.
func (s *SnapshotStore) Save(ctx context.Context, strat Strategy, state State, resumable bool) error {
	cfg, err := strat.Config()
	if err != nil {
		return errors.Wrap(err, "snapshot config")
	}
	legKeys, err := json.Marshal(strat.Legs())
	if err != nil {
		return errors.Wrap(err, "encode snapshot legs")
	}

	now := time.Now().UTC()
	row := Snapshot{
		ID:        strat.ID(),
		Kind:      strat.Kind(),
		State:     string(state),
		Resumable: resumable,
		Config:    datatypes.JSON(cfg),
		LegKeys:   datatypes.JSON(legKeys),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// ListResumable returns every snapshot eligible for restart restoration.
func (s *SnapshotStore) ListResumable(ctx context.Context) ([]Snapshot, error) {
	var rows []Snapshot
	err := s.db.WithContext(ctx).
		Where("resumable = ?", true).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Delete removes a snapshot, typically when a strategy is torn down.
func (s *SnapshotStore) Delete(ctx context.Context, strategyID string) error {
	return s.db.WithContext(ctx).
		Where("id = ?", strategyID).
		Delete(&Snapshot{}).Error
}
