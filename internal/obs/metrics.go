package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"main/internal/schema"
)

var (
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_session_state",
			Help: "Current session state as labeled 0/1 series",
		},
		[]string{"state"},
	)

	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_session_events_total",
			Help: "Session lifecycle events published",
		},
		[]string{"type"},
	)

	probeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_probe_failures_total",
			Help: "Health probe failures",
		},
	)

	probeFailureStreak = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_probe_failure_streak",
			Help: "Consecutive health probe failures since the last success",
		},
	)

	reauthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reauth_total",
			Help: "Credential exchange attempts by result (success|failure)",
		},
		[]string{"result"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reconcile_runs_total",
			Help: "Reconciliation runs by trigger",
		},
		[]string{"trigger"},
	)

	reconcileMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reconcile_mismatches_total",
			Help: "Reconciliation mismatches by type and resolution",
		},
		[]string{"type", "resolution"},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_reconcile_duration_seconds",
			Help:    "Wall time of a full reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	recoveryRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_recovery_runs_total",
			Help: "Startup recovery runs by result (success|failure)",
		},
		[]string{"result"},
	)

	killSwitch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_kill_switch",
			Help: "Kill switch state (1 active)",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_daily_pnl",
			Help: "Realized profit and loss for the current trading day",
		},
	)

	queueDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_event_queue_dropped_total",
			Help: "Lifecycle events dropped by a full queue",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionState, sessionEvents)
	prometheus.MustRegister(probeFailures, probeFailureStreak, reauthAttempts)
	prometheus.MustRegister(reconcileRuns, reconcileMismatches, reconcileDuration)
	prometheus.MustRegister(recoveryRuns, killSwitch, dailyPnL, queueDrops)
}

// SetSessionState flips the labeled state series so exactly one reads 1.
func SetSessionState(state schema.SessionState) {
	for s := schema.SessionDisconnected; s <= schema.SessionExpired; s++ {
		v := 0.0
		if s == state {
			v = 1.0
		}
		sessionState.WithLabelValues(s.String()).Set(v)
	}
}

func IncSessionEvent(t schema.EventType) { sessionEvents.WithLabelValues(string(t)).Inc() }

func IncProbeFailure() { probeFailures.Inc() }

func SetProbeFailureStreak(n int) { probeFailureStreak.Set(float64(n)) }

func IncReauth(success bool) {
	if success {
		reauthAttempts.WithLabelValues("success").Inc()
	} else {
		reauthAttempts.WithLabelValues("failure").Inc()
	}
}

func IncReconcileRun(trigger schema.ReconcileTrigger) {
	reconcileRuns.WithLabelValues(string(trigger)).Inc()
}

func IncReconcileMismatch(t schema.MismatchType, r schema.Resolution) {
	reconcileMismatches.WithLabelValues(t.String(), r.String()).Inc()
}

func ObserveReconcileDuration(d time.Duration) { reconcileDuration.Observe(d.Seconds()) }

func IncRecoveryRun(success bool) {
	if success {
		recoveryRuns.WithLabelValues("success").Inc()
	} else {
		recoveryRuns.WithLabelValues("failure").Inc()
	}
}

func SetKillSwitch(active bool) {
	if active {
		killSwitch.Set(1)
	} else {
		killSwitch.Set(0)
	}
}

func SetDailyPnL(v float64) { dailyPnL.Set(v) }

func IncQueueDrop() { queueDrops.Inc() }
