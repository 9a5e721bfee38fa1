package schema

import "time"

// JournalStatus tracks a multi-leg execution journal entry.
type JournalStatus string

const (
	JournalPending          JournalStatus = "PENDING"
	JournalInProgress       JournalStatus = "IN_PROGRESS"
	JournalCompleted        JournalStatus = "COMPLETED"
	JournalFailed           JournalStatus = "FAILED"
	JournalRequiresRecovery JournalStatus = "REQUIRES_RECOVERY"
)

// ExecutionJournalEntry is one leg of a multi-leg broker operation, written
// ahead of the broker call. A crash mid-group strands entries IN_PROGRESS;
// recovery reclassifies those to REQUIRES_RECOVERY because the broker-side
// outcome is unknown.
type ExecutionJournalEntry struct {
	ID            string        `gorm:"column:id;primaryKey" json:"id"`
	GroupID       string        `gorm:"column:group_id;index" json:"groupId"`
	StrategyID    string        `gorm:"column:strategy_id;index" json:"strategyId"`
	InstrumentKey string        `gorm:"column:instrument_key" json:"instrumentKey"`
	Status        JournalStatus `gorm:"column:status;index" json:"status"`
	Detail        string        `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt     time.Time     `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName names the execution journal table.
func (ExecutionJournalEntry) TableName() string { return "execution_journal" }

// Open reports whether the entry still describes unfinished work.
func (e ExecutionJournalEntry) Open() bool {
	switch e.Status {
	case JournalPending, JournalInProgress, JournalRequiresRecovery:
		return true
	default:
		return false
	}
}
