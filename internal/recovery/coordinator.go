package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
	"main/pkg/id"
)

// Journal is the slice of the journal store recovery needs.
type Journal interface {
	ReclassifyInProgress(ctx context.Context) ([]string, error)
}

// Reconciler runs one position reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, trigger schema.ReconcileTrigger) (schema.ReconciliationResult, error)
}

// SnapshotSource lists the strategies eligible for restoration.
type SnapshotSource interface {
	ListResumable(ctx context.Context) ([]strategy.Snapshot, error)
}

// Book is the cached position surface recovery reads legs from and
// repairs ownership on.
type Book interface {
	List(ctx context.Context) ([]schema.Position, error)
	Put(ctx context.Context, p schema.Position) error
}

// Coordinator runs the startup recovery sequence once, after the first
// credential acquisition. Steps are isolated: a failing step is recorded
// and the rest still run, so startup always completes with an explicit
// account of what could not be restored.
type Coordinator struct {
	risk       *risk.State
	journal    Journal
	reconciler Reconciler
	snapshots  SnapshotSource
	registry   *strategy.Registry
	engine     *strategy.Engine
	book       Book
	queue      *bus.Queue
}

// NewCoordinator wires the recovery sequence. Any dependency may be nil;
// its step is skipped.
func NewCoordinator(
	riskState *risk.State,
	journal Journal,
	reconciler Reconciler,
	snapshots SnapshotSource,
	registry *strategy.Registry,
	engine *strategy.Engine,
	book Book,
	queue *bus.Queue,
) *Coordinator {
	return &Coordinator{
		risk:       riskState,
		journal:    journal,
		reconciler: reconciler,
		snapshots:  snapshots,
		registry:   registry,
		engine:     engine,
		book:       book,
		queue:      queue,
	}
}

// Run executes the recovery sequence and reports the aggregate outcome.
// A system-ready event is published regardless of partial failures.
func (c *Coordinator) Run(ctx context.Context) schema.RecoveryResult {
	start := time.Now()
	result := schema.RecoveryResult{
		RunID:     id.New(),
		StartedAt: start.UTC(),
	}
	var failures []string

	c.restoreRiskState(ctx, &result, &failures)
	c.reclassifyJournal(ctx, &result, &failures)
	c.reconcilePositions(ctx, &result, &failures)
	c.restoreStrategies(ctx, &result, &failures)

	result.Duration = time.Since(start)
	result.Success = len(failures) == 0
	if !result.Success {
		result.Err = strings.Join(failures, "; ")
	}

	obs.IncRecoveryRun(result.Success)
	c.publishReady(result)
	logs.Infof("recovery finished in %s: pnl=%s killSwitch=%v journalGroups=%d synced=%d resumed=%d skipped=%d failures=%d",
		result.Duration.Round(time.Millisecond), result.RestoredPnL, result.KillSwitchActive,
		result.IncompleteGroups, result.PositionsSynced, result.StrategiesResumed,
		result.StrategiesSkipped, len(failures))
	return result
}

func (c *Coordinator) restoreRiskState(ctx context.Context, result *schema.RecoveryResult, failures *[]string) {
	if c.risk == nil {
		return
	}
	agg, err := c.risk.Restore(ctx, time.Now())
	if err != nil {
		logs.Errorf("recovery: restore risk state: %+v", err)
		*failures = append(*failures, "risk: "+err.Error())
		return
	}
	result.RestoredPnL = agg.RealizedPnL
	result.KillSwitchActive = agg.KillSwitch
}

func (c *Coordinator) reclassifyJournal(ctx context.Context, result *schema.RecoveryResult, failures *[]string) {
	if c.journal == nil {
		return
	}
	groups, err := c.journal.ReclassifyInProgress(ctx)
	if err != nil {
		logs.Errorf("recovery: reclassify journal: %+v", err)
		*failures = append(*failures, "journal: "+err.Error())
		return
	}
	result.IncompleteGroups = len(groups)
	if len(groups) > 0 {
		logs.Warnf("recovery: %d journal groups need manual attention: %v", len(groups), groups)
	}
}

func (c *Coordinator) reconcilePositions(ctx context.Context, result *schema.RecoveryResult, failures *[]string) {
	if c.reconciler == nil {
		return
	}
	res, err := c.reconciler.Reconcile(ctx, schema.TriggerStartup)
	if err != nil {
		logs.Errorf("recovery: startup reconciliation: %+v", err)
		*failures = append(*failures, "reconcile: "+err.Error())
		return
	}
	result.PositionsSynced = res.ResolvedCount
}

// restoreStrategies reconstructs resumable strategies and rebuilds the
// leg index. With the kill switch active nothing is loaded, but the index
// is still seeded from cached ownership so lookups keep working.
func (c *Coordinator) restoreStrategies(ctx context.Context, result *schema.RecoveryResult, failures *[]string) {
	if c.engine == nil {
		return
	}

	byKey := map[string]schema.Position{}
	if c.book != nil {
		cached, err := c.book.List(ctx)
		if err != nil {
			logs.Errorf("recovery: list cached positions: %+v", err)
			*failures = append(*failures, "positions: "+err.Error())
		}
		for _, p := range cached {
			byKey[p.InstrumentKey] = p
		}
	}

	if c.risk != nil && c.risk.KillSwitchActive() {
		logs.Warn("recovery: kill switch active, strategies stay down")
		c.engine.Reindex()
		positions := make([]schema.Position, 0, len(byKey))
		for _, p := range byKey {
			positions = append(positions, p)
		}
		c.engine.SeedIndex(positions)
		return
	}

	if c.snapshots != nil && c.registry != nil {
		snaps, err := c.snapshots.ListResumable(ctx)
		if err != nil {
			logs.Errorf("recovery: list snapshots: %+v", err)
			*failures = append(*failures, "snapshots: "+err.Error())
			snaps = nil
		}
		for _, snap := range snaps {
			if restored := c.restoreOne(snap, byKey); restored {
				result.StrategiesResumed++
			} else {
				result.StrategiesSkipped++
			}
		}
	}

	c.engine.Reindex()
	c.clearOrphanedOwners(ctx, byKey)
}

// restoreOne rebuilds and attaches a single strategy. A failure is logged
// and skipped, never fatal to the batch.
func (c *Coordinator) restoreOne(snap strategy.Snapshot, byKey map[string]schema.Position) bool {
	s, err := c.registry.Reconstruct(snap.Kind, json.RawMessage(snap.Config))
	if err != nil {
		logs.Errorf("recovery: reconstruct strategy %s (%s): %+v", snap.ID, snap.Kind, err)
		return false
	}

	legs, err := snap.Legs()
	if err != nil {
		logs.Errorf("recovery: decode legs of strategy %s: %+v", snap.ID, err)
		return false
	}
	positions := make([]schema.Position, 0, len(legs))
	for _, key := range legs {
		if p, ok := byKey[key]; ok {
			positions = append(positions, p)
		}
	}
	s.Restore(positions)

	if err := c.engine.Attach(s); err != nil {
		logs.Errorf("recovery: attach strategy %s: %+v", snap.ID, err)
		return false
	}
	return true
}

// clearOrphanedOwners strips ownership from cached positions whose
// strategy did not come back, so a later quantity mismatch cannot try to
// pause a ghost.
func (c *Coordinator) clearOrphanedOwners(ctx context.Context, byKey map[string]schema.Position) {
	if c.book == nil {
		return
	}
	for _, p := range byKey {
		if p.OwnerStrategyID == "" {
			continue
		}
		if _, ok := c.engine.Get(p.OwnerStrategyID); ok {
			continue
		}
		logs.Warnf("recovery: clearing orphaned owner %s on %s", p.OwnerStrategyID, p.InstrumentKey)
		p.OwnerStrategyID = ""
		p.UpdatedAt = time.Now().UTC()
		if err := c.book.Put(ctx, p); err != nil {
			logs.Errorf("recovery: clear owner on %s: %+v", p.InstrumentKey, err)
		}
	}
}

func (c *Coordinator) publishReady(result schema.RecoveryResult) {
	if c.queue == nil {
		return
	}

	e := schema.NewSystemEvent(schema.EventSystemReady,
		fmt.Sprintf("recovery resumed=%d skipped=%d", result.StrategiesResumed, result.StrategiesSkipped)).
		WithField("runId", result.RunID).
		WithField("killSwitch", fmt.Sprintf("%v", result.KillSwitchActive)).
		WithField("incompleteGroups", fmt.Sprintf("%d", result.IncompleteGroups))
	if err := c.queue.TryPublish(e); err != nil {
		obs.IncQueueDrop()
		logs.Warnf("drop %s event: %+v", e.Type, err)
	}
}
