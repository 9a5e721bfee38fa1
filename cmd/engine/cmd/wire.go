package cmd

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/journal"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/recovery"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/session"
	"main/internal/strategy"
	"main/pkg/conn"
)

// core bundles the services the commands compose. Stores connect
// eagerly so a bad config fails before any periodic work starts.
type core struct {
	cfg ops.Loaded

	pg    *conn.Postgres
	rd    *conn.Redis
	queue *bus.Queue

	api   broker.API
	risk  *risk.State
	book  *position.Cache
	audit *position.AuditLog

	health *session.Health
	auth   *session.Auth
	expiry *session.Expiry
	guard  *session.Guard

	registry   *strategy.Registry
	strategies *strategy.Engine
	reconciler *position.Reconciler
	journal    *journal.Store
	snapshots  *strategy.SnapshotStore
	recovery   *recovery.Coordinator
}

func loadConfig() (ops.Loaded, error) {
	if configPath == "" {
		return ops.Defaults()
	}
	return ops.Load(configPath)
}

func buildCore(ctx context.Context) (*core, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	pg, err := conn.NewPostgres(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pg.Migrate(
		&schema.SessionRecord{},
		&schema.ExecutionJournalEntry{},
		&strategy.Snapshot{},
		&position.ReconciliationAudit{},
		&risk.DailyAggregate{},
	); err != nil {
		_ = pg.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	rd, err := conn.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = pg.Close()
		return nil, errors.Wrap(err, "connect redis")
	}

	c := &core{cfg: cfg, pg: pg, rd: rd}
	c.queue = bus.NewQueue(cfg.Bus.QueueSize)
	c.api = newBroker(cfg.Broker)
	c.risk = risk.NewState(risk.NewStore(pg.DB()))
	c.risk.SetDailyLossLimit(cfg.Risk.DailyLossLimit)
	c.book = position.NewCache(rd.Client())
	c.audit = position.NewAuditLog(pg.DB())
	c.journal = journal.NewStore(pg.DB())
	c.snapshots = strategy.NewSnapshotStore(pg.DB())

	c.health = session.NewHealth(session.HealthConfig{
		FailureThreshold: cfg.Probe.FailureThreshold,
		ProbeTimeout:     cfg.Probe.Timeout,
	}, c.api, c.queue)
	c.auth = session.NewAuth(session.AuthConfig{
		AutoLogin:       cfg.Auth.AutoLogin,
		ExchangeTimeout: cfg.Auth.ExchangeTimeout,
		NextExpiry:      cfg.Auth.NextExpiry,
	}, c.api, session.NewStore(pg.DB()), session.NewTokenCache(rd.Client()), c.health)
	c.expiry = session.NewExpiry(session.ExpiryConfig{
		WarningWindow: cfg.Expiry.WarningWindow,
		ActionWindow:  cfg.Expiry.ActionWindow,
	}, c.auth, c.health, c.risk)
	c.guard = session.NewGuard(c.health)

	c.registry = strategy.NewRegistry()
	strategy.RegisterDefaults(c.registry)
	c.strategies = strategy.NewEngine()

	c.reconciler = position.NewReconciler(position.ReconcilerConfig{
		DriftTolerance: cfg.Reconcile.DriftTolerance,
	}, c.api, c.book, c.strategies, c.audit, c.queue)

	c.recovery = recovery.NewCoordinator(
		c.risk, c.journal, c.reconciler, c.snapshots,
		c.registry, c.strategies, c.book, c.queue,
	)
	return c, nil
}

func newBroker(spec ops.BrokerSpec) broker.API {
	if paperMode {
		return broker.NewSim()
	}
	return broker.NewREST(broker.RESTConfig{
		Name:      spec.Name,
		BaseURL:   spec.BaseURL,
		APIKey:    spec.APIKey,
		APISecret: spec.APISecret,
		Timeout:   spec.Timeout,
	})
}

// Close releases connections in reverse acquisition order.
func (c *core) Close() {
	c.queue.Close()
	if err := c.rd.Close(); err != nil {
		logs.Warnf("close redis, err: %+v", err)
	}
	if err := c.pg.Close(); err != nil {
		logs.Warnf("close postgres, err: %+v", err)
	}
}
