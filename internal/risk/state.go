package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/obs"
)

// Aggregates is the durable side of the risk cell.
type Aggregates interface {
	Latest(ctx context.Context) (DailyAggregate, bool, error)
	Save(ctx context.Context, agg DailyAggregate) error
}

// State is the in-memory risk cell. The kill switch halts all automation
// until an operator clears it; auto-pause is the softer, session-driven
// stop that re-authentication lifts again.
type State struct {
	store Aggregates

	mu          sync.RWMutex
	date        string
	killSwitch  bool
	killReason  string
	realizedPnL decimal.Decimal
	lossLimit   decimal.Decimal
	autoPaused  bool
	pauseReason string
}

// NewState creates a risk cell. store may be nil, leaving the cell purely
// in-memory.
func NewState(store Aggregates) *State {
	return &State{store: store, date: TradingDay(time.Now())}
}

// Restore loads the pre-shutdown aggregate into the cell and returns it.
// A latest row from an earlier trading day resets realized P&L but keeps
// the kill switch, so a restart can never silently clear it.
func (s *State) Restore(ctx context.Context, now time.Time) (DailyAggregate, error) {
	today := TradingDay(now)
	if s.store == nil {
		return DailyAggregate{Date: today}, nil
	}

	agg, found, err := s.store.Latest(ctx)
	if err != nil {
		return DailyAggregate{}, errors.Wrap(err, "load risk aggregate")
	}
	switch {
	case !found:
		agg = DailyAggregate{Date: today}
	case agg.Date != today:
		agg = DailyAggregate{
			Date:       today,
			KillSwitch: agg.KillSwitch,
			KillReason: agg.KillReason,
		}
	}

	s.mu.Lock()
	s.date = agg.Date
	s.killSwitch = agg.KillSwitch
	s.killReason = agg.KillReason
	s.realizedPnL = agg.RealizedPnL
	s.mu.Unlock()

	obs.SetKillSwitch(agg.KillSwitch)
	obs.SetDailyPnL(agg.RealizedPnL.InexactFloat64())
	if agg.KillSwitch {
		logs.Warnf("kill switch restored active from %s: %s", agg.Date, agg.KillReason)
	}
	return agg, nil
}

// PauseAutomation stops automated actions without touching the kill
// switch. Used when the session is about to expire.
func (s *State) PauseAutomation(reason string) {
	s.mu.Lock()
	s.autoPaused = true
	s.pauseReason = reason
	s.mu.Unlock()
	logs.Warnf("risk automation paused: %s", reason)
}

// ResumeAutomation lifts the automation pause, typically after a
// successful re-authentication.
func (s *State) ResumeAutomation() {
	s.mu.Lock()
	wasPaused := s.autoPaused
	s.autoPaused = false
	s.pauseReason = ""
	s.mu.Unlock()
	if wasPaused {
		logs.Info("risk automation resumed")
	}
}

// AutoPaused reports the automation pause flag and its reason.
func (s *State) AutoPaused() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoPaused, s.pauseReason
}

// Rollover starts a fresh trading day, zeroing realized P&L and keeping
// the kill switch. A same-day call is a no-op, so callers can invoke it
// on every reconnect.
func (s *State) Rollover(ctx context.Context, now time.Time) error {
	today := TradingDay(now)
	s.mu.Lock()
	if s.date == today {
		s.mu.Unlock()
		return nil
	}
	prev := s.date
	s.date = today
	s.realizedPnL = decimal.Zero
	s.mu.Unlock()

	obs.SetDailyPnL(0)
	logs.Infof("trading day rolled over %s -> %s", prev, today)
	return s.persist(ctx)
}

// TripKillSwitch halts all automation durably. Only ClearKillSwitch
// reverses it; a restart never does.
func (s *State) TripKillSwitch(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.killSwitch = true
	s.killReason = reason
	s.mu.Unlock()

	obs.SetKillSwitch(true)
	logs.Errorf("kill switch tripped: %s", reason)
	return s.persist(ctx)
}

// ClearKillSwitch is the explicit operator reset.
func (s *State) ClearKillSwitch(ctx context.Context) error {
	s.mu.Lock()
	s.killSwitch = false
	s.killReason = ""
	s.mu.Unlock()

	obs.SetKillSwitch(false)
	logs.Warn("kill switch cleared by operator")
	return s.persist(ctx)
}

// KillSwitchActive reports the kill switch state.
func (s *State) KillSwitchActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killSwitch
}

// SetDailyLossLimit arms the automatic trip on realized losses. A zero
// or negative limit disables it.
func (s *State) SetDailyLossLimit(limit decimal.Decimal) {
	s.mu.Lock()
	s.lossLimit = limit
	s.mu.Unlock()
}

// AddRealizedPnL folds a realized gain or loss into the daily total.
// Crossing the configured loss limit trips the kill switch.
func (s *State) AddRealizedPnL(ctx context.Context, delta decimal.Decimal) error {
	s.mu.Lock()
	s.realizedPnL = s.realizedPnL.Add(delta)
	total := s.realizedPnL
	limit := s.lossLimit
	tripped := s.killSwitch
	s.mu.Unlock()

	obs.SetDailyPnL(total.InexactFloat64())
	if !tripped && limit.IsPositive() && total.LessThanOrEqual(limit.Neg()) {
		return s.TripKillSwitch(ctx, fmt.Sprintf("daily loss limit breached: realized %s", total.StringFixed(2)))
	}
	return s.persist(ctx)
}

// RealizedPnL returns the daily total.
func (s *State) RealizedPnL() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realizedPnL
}

// Snapshot returns the cell as a persistable aggregate.
func (s *State) Snapshot() DailyAggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DailyAggregate{
		Date:        s.date,
		RealizedPnL: s.realizedPnL,
		KillSwitch:  s.killSwitch,
		KillReason:  s.killReason,
	}
}

func (s *State) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.Snapshot()); err != nil {
		return errors.Wrap(err, "persist risk aggregate")
	}
	return nil
}
