package position

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/id"
)

// ReconciliationAudit is one persisted reconciliation run summary.
type ReconciliationAudit struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	Trigger       string         `gorm:"column:trigger;index" json:"trigger"`
	RunAt         time.Time      `gorm:"column:run_at;index" json:"runAt"`
	BrokerCount   int            `gorm:"column:broker_count" json:"brokerCount"`
	LocalCount    int            `gorm:"column:local_count" json:"localCount"`
	MatchedCount  int            `gorm:"column:matched_count" json:"matchedCount"`
	MismatchCount int            `gorm:"column:mismatch_count" json:"mismatchCount"`
	ResolvedCount int            `gorm:"column:resolved_count" json:"resolvedCount"`
	Mismatches    datatypes.JSON `gorm:"column:mismatches" json:"mismatches"`
	DurationMS    int64          `gorm:"column:duration_ms" json:"durationMs"`
}

// TableName names the reconciliation audit table.
func (ReconciliationAudit) TableName() string { return "reconciliation_audit" }

// AuditLog persists reconciliation run summaries.
type AuditLog struct {
	db *gorm.DB
}

// NewAuditLog creates a durable reconciliation audit log.
func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record appends one run summary.
func (l *AuditLog) Record(ctx context.Context, result schema.ReconciliationResult) error {
	payload, err := json.Marshal(result.Mismatches)
	if err != nil {
		return errors.Wrap(err, "encode mismatches")
	}

	row := ReconciliationAudit{
		ID:            id.New(),
		Trigger:       string(result.Trigger),
		RunAt:         result.Timestamp,
		BrokerCount:   result.BrokerCount,
		LocalCount:    result.LocalCount,
		MatchedCount:  result.MatchedCount,
		MismatchCount: result.MismatchCount(),
		ResolvedCount: result.ResolvedCount,
		Mismatches:    datatypes.JSON(payload),
		DurationMS:    result.Duration.Milliseconds(),
	}
	return l.db.WithContext(ctx).Create(&row).Error
}

// Recent returns the latest run summaries, newest first.
func (l *AuditLog) Recent(ctx context.Context, limit int) ([]ReconciliationAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ReconciliationAudit
	err := l.db.WithContext(ctx).Order("run_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
