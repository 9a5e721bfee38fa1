package journal

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/id"
)

// Store persists the execution journal. Every leg of a multi-leg broker
// operation is appended before the broker call, so a crash leaves a
// visible trail instead of silent half-done work.
type Store struct {
	db *gorm.DB
}

// NewStore creates a durable journal store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// BeginGroup allocates the group ID shared by the legs of one operation.
func BeginGroup() string {
	return id.New()
}

// Append writes one journal leg and returns it with its generated ID and
// timestamps filled in. Entries without a status start PENDING.
func (s *Store) Append(ctx context.Context, entry schema.ExecutionJournalEntry) (schema.ExecutionJournalEntry, error) {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = id.New()
	}
	if entry.Status == "" {
		entry.Status = schema.JournalPending
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return schema.ExecutionJournalEntry{}, err
	}
	return entry, nil
}

// UpdateStatus moves one leg to a new status, replacing its detail.
func (s *Store) UpdateStatus(ctx context.Context, entryID string, status schema.JournalStatus, detail string) error {
	return s.db.WithContext(ctx).
		Model(&schema.ExecutionJournalEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{
			"status":     status,
			"detail":     detail,
			"updated_at": time.Now().UTC(),
		}).Error
}

// Open returns every leg that still describes unfinished work, oldest
// first.
func (s *Store) Open(ctx context.Context) ([]schema.ExecutionJournalEntry, error) {
	var entries []schema.ExecutionJournalEntry
	err := s.db.WithContext(ctx).
		Where("status IN ?", []schema.JournalStatus{
			schema.JournalPending,
			schema.JournalInProgress,
			schema.JournalRequiresRecovery,
		}).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// Group returns every leg of one operation, oldest first.
func (s *Store) Group(ctx context.Context, groupID string) ([]schema.ExecutionJournalEntry, error) {
	var entries []schema.ExecutionJournalEntry
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ReclassifyInProgress marks every IN_PROGRESS leg REQUIRES_RECOVERY and
// returns the distinct group IDs that now need manual attention,
// including groups that were already flagged. The broker-side outcome of
// an interrupted leg is unknown, so nothing is auto-resumed or rolled
// back.
func (s *Store) ReclassifyInProgress(ctx context.Context) ([]string, error) {
	var groups []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&schema.ExecutionJournalEntry{}).
			Where("status IN ?", []schema.JournalStatus{
				schema.JournalInProgress,
				schema.JournalRequiresRecovery,
			}).
			Distinct().
			Pluck("group_id", &groups).Error
		if err != nil {
			return err
		}
		return tx.Model(&schema.ExecutionJournalEntry{}).
			Where("status = ?", schema.JournalInProgress).
			Updates(map[string]any{
				"status":     schema.JournalRequiresRecovery,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)
	return groups, nil
}
