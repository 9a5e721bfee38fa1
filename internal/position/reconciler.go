package position

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/obs"
	"main/internal/schema"
)

// Book is the cached position surface a reconciliation run reads and
// repairs.
type Book interface {
	List(ctx context.Context) ([]schema.Position, error)
	Put(ctx context.Context, p schema.Position) error
	Delete(ctx context.Context, instrumentKey string) error
}

// StrategyPauser pauses the strategy owning a position whose broker
// quantity disagrees with the cache.
type StrategyPauser interface {
	Pause(strategyID, reason string) error
}

// Recorder persists one run summary for audit.
type Recorder interface {
	Record(ctx context.Context, result schema.ReconciliationResult) error
}

// ReconcilerConfig tunes mismatch classification.
type ReconcilerConfig struct {
	// DriftTolerance is the relative price difference above which a
	// matched position is flagged, e.g. 0.02 for two percent.
	DriftTolerance float64
}

// Reconciler compares the broker's position book against the cache and
// applies the per-mismatch resolution policy. Runs are idempotent and
// need not exclude each other.
type Reconciler struct {
	api       broker.API
	book      Book
	pauser    StrategyPauser
	audit     Recorder
	queue     *bus.Queue
	tolerance decimal.Decimal
}

// NewReconciler wires a reconciler. pauser, audit, and queue may each be
// nil when the corresponding side effect is not wanted.
func NewReconciler(cfg ReconcilerConfig, api broker.API, book Book, pauser StrategyPauser, audit Recorder, queue *bus.Queue) *Reconciler {
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = 0.02
	}
	return &Reconciler{
		api:       api,
		book:      book,
		pauser:    pauser,
		audit:     audit,
		queue:     queue,
		tolerance: decimal.NewFromFloat(cfg.DriftTolerance),
	}
}

// Reconcile runs one full pass and returns its result. Broker or cache
// fetch failures abort the run; classification and resolution failures
// are recorded on the mismatch and never abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, trigger schema.ReconcileTrigger) (schema.ReconciliationResult, error) {
	start := time.Now()

	brokerPositions, err := r.api.Positions(ctx)
	if err != nil {
		return schema.ReconciliationResult{}, errors.Wrap(err, "fetch broker positions")
	}
	cached, err := r.book.List(ctx)
	if err != nil {
		return schema.ReconciliationResult{}, errors.Wrap(err, "list cached positions")
	}

	brokerByKey := make(map[string]schema.BrokerPosition, len(brokerPositions))
	for _, b := range brokerPositions {
		if b.Quantity == 0 {
			continue
		}
		brokerByKey[b.InstrumentKey] = b
	}
	localByKey := make(map[string]schema.Position, len(cached))
	for _, p := range cached {
		localByKey[p.InstrumentKey] = p
	}

	result := schema.ReconciliationResult{
		Timestamp:   start.UTC(),
		Trigger:     trigger,
		BrokerCount: len(brokerByKey),
		LocalCount:  len(localByKey),
	}

	for _, key := range sortedKeys(brokerByKey) {
		b := brokerByKey[key]
		local, ok := localByKey[key]
		switch {
		case !ok:
			result.Mismatches = append(result.Mismatches, r.adoptBrokerPosition(ctx, b))
		case local.Quantity != b.Quantity:
			result.Mismatches = append(result.Mismatches, r.syncQuantity(ctx, local, b))
		default:
			result.MatchedCount++
			if m, drifted := r.checkDrift(local, b); drifted {
				result.Mismatches = append(result.Mismatches, m)
			}
		}
	}
	for _, key := range sortedKeys(localByKey) {
		if _, ok := brokerByKey[key]; ok {
			continue
		}
		result.Mismatches = append(result.Mismatches, r.dropStale(ctx, localByKey[key]))
	}

	for _, m := range result.Mismatches {
		if m.Resolved {
			result.ResolvedCount++
		}
		obs.IncReconcileMismatch(m.Type, m.Resolution)
	}
	result.Duration = time.Since(start)

	obs.IncReconcileRun(trigger)
	obs.ObserveReconcileDuration(result.Duration)
	r.publish(result)
	r.record(ctx, result)

	logs.Infof("reconciliation %s: broker=%d local=%d matched=%d mismatches=%d resolved=%d in %s",
		trigger, result.BrokerCount, result.LocalCount, result.MatchedCount,
		result.MismatchCount(), result.ResolvedCount, result.Duration)
	return result, nil
}

// adoptBrokerPosition copies a broker position the cache never saw.
func (r *Reconciler) adoptBrokerPosition(ctx context.Context, b schema.BrokerPosition) schema.PositionMismatch {
	m := schema.PositionMismatch{
		InstrumentKey: b.InstrumentKey,
		Type:          schema.MismatchMissingLocal,
		Resolution:    schema.ResolveAutoSync,
		BrokerQty:     b.Quantity,
	}

	err := r.book.Put(ctx, schema.Position{
		InstrumentKey: b.InstrumentKey,
		Symbol:        b.Symbol,
		Quantity:      b.Quantity,
		AveragePrice:  b.AveragePrice,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		logs.Errorf("adopt broker position %s: %+v", b.InstrumentKey, err)
		m.Detail = err.Error()
		return m
	}
	m.Resolved = true
	m.Detail = fmt.Sprintf("adopted broker position qty=%d", b.Quantity)
	return m
}

// syncQuantity repairs a quantity disagreement. A strategy-owned position
// pauses its owner first so the strategy cannot act on the stale quantity,
// then the quantity is synced either way.
func (r *Reconciler) syncQuantity(ctx context.Context, local schema.Position, b schema.BrokerPosition) schema.PositionMismatch {
	m := schema.PositionMismatch{
		InstrumentKey: b.InstrumentKey,
		Type:          schema.MismatchQuantity,
		Resolution:    schema.ResolveAutoSync,
		BrokerQty:     b.Quantity,
		LocalQty:      local.Quantity,
	}

	if local.OwnerStrategyID != "" {
		m.Resolution = schema.ResolvePauseStrategy
		reason := fmt.Sprintf("quantity mismatch on %s: broker=%d local=%d", b.InstrumentKey, b.Quantity, local.Quantity)
		if r.pauser == nil {
			logs.Warnf("no strategy pauser wired, cannot pause %s: %s", local.OwnerStrategyID, reason)
		} else if err := r.pauser.Pause(local.OwnerStrategyID, reason); err != nil {
			logs.Errorf("pause strategy %s: %+v", local.OwnerStrategyID, err)
		}
		local.Quantity = b.Quantity
	} else {
		local.Quantity = b.Quantity
		local.AveragePrice = b.AveragePrice
	}
	local.UpdatedAt = time.Now().UTC()

	if err := r.book.Put(ctx, local); err != nil {
		logs.Errorf("sync position %s: %+v", b.InstrumentKey, err)
		m.Detail = err.Error()
		return m
	}
	m.Resolved = true
	m.Detail = fmt.Sprintf("quantity synced to broker value %d", b.Quantity)
	return m
}

// checkDrift flags matched positions whose entry prices disagree beyond
// tolerance. A zero local price is not comparable and is skipped.
func (r *Reconciler) checkDrift(local schema.Position, b schema.BrokerPosition) (schema.PositionMismatch, bool) {
	if local.AveragePrice.IsZero() {
		return schema.PositionMismatch{}, false
	}
	drift := b.AveragePrice.Sub(local.AveragePrice).Abs().Div(local.AveragePrice.Abs())
	if !drift.GreaterThan(r.tolerance) {
		return schema.PositionMismatch{}, false
	}

	return schema.PositionMismatch{
		InstrumentKey: b.InstrumentKey,
		Type:          schema.MismatchPriceDrift,
		Resolution:    schema.ResolveAlertOnly,
		BrokerQty:     b.Quantity,
		LocalQty:      local.Quantity,
		Detail: fmt.Sprintf("price drift %s%%: broker=%s local=%s",
			drift.Mul(decimal.NewFromInt(100)).StringFixed(2), b.AveragePrice, local.AveragePrice),
	}, true
}

// dropStale removes a cached position the broker no longer reports.
func (r *Reconciler) dropStale(ctx context.Context, local schema.Position) schema.PositionMismatch {
	m := schema.PositionMismatch{
		InstrumentKey: local.InstrumentKey,
		Type:          schema.MismatchMissingBroker,
		Resolution:    schema.ResolveAutoSync,
		LocalQty:      local.Quantity,
	}

	if err := r.book.Delete(ctx, local.InstrumentKey); err != nil {
		logs.Errorf("drop stale position %s: %+v", local.InstrumentKey, err)
		m.Detail = err.Error()
		return m
	}
	m.Resolved = true
	m.Detail = "stale local position removed"
	return m
}

func (r *Reconciler) publish(result schema.ReconciliationResult) {
	if r.queue == nil {
		return
	}

	e := schema.NewSystemEvent(schema.EventReconciliationCompleted,
		fmt.Sprintf("%d mismatches, %d resolved", result.MismatchCount(), result.ResolvedCount)).
		WithField("trigger", string(result.Trigger)).
		WithField("mismatches", fmt.Sprintf("%d", result.MismatchCount()))
	if err := r.queue.TryPublish(e); err != nil {
		obs.IncQueueDrop()
		logs.Warnf("drop %s event: %+v", e.Type, err)
	}
}

func (r *Reconciler) record(ctx context.Context, result schema.ReconciliationResult) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, result); err != nil {
		logs.Errorf("record reconciliation audit: %+v", err)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
