package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

// DurableStore persists the current session record across restarts.
type DurableStore interface {
	Save(ctx context.Context, record schema.SessionRecord) error
	Current(ctx context.Context, now time.Time) (schema.SessionRecord, error)
	Clear(ctx context.Context) error
}

// FastCache keeps the active token with a TTL aligned to wall-clock expiry.
type FastCache interface {
	Put(ctx context.Context, token string, ttl time.Duration) error
	Get(ctx context.Context) (string, error)
	Delete(ctx context.Context) error
}

// AuthConfig controls login behavior.
type AuthConfig struct {
	AutoLogin       bool
	ExchangeTimeout time.Duration

	// NextExpiry maps now to the session's wall-clock expiry instant. The
	// same function backs the persisted TTL and in-memory checks so the two
	// never disagree.
	NextExpiry func(time.Time) time.Time
}

// Auth exchanges credentials for session tokens. Re-authentication is
// single-flight: one caller performs the exchange, concurrent callers
// block until it finishes and adopt its outcome.
type Auth struct {
	cfg    AuthConfig
	api    broker.API
	store  DurableStore
	cache  FastCache
	health *Health

	flight sync.Mutex

	mu     sync.RWMutex
	record schema.SessionRecord
}

// NewAuth creates the auth gateway.
func NewAuth(cfg AuthConfig, api broker.API, store DurableStore, cache FastCache, health *Health) *Auth {
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 15 * time.Second
	}
	if cfg.NextExpiry == nil {
		cfg.NextExpiry = func(now time.Time) time.Time { return now.Add(24 * time.Hour) }
	}
	return &Auth{
		cfg:    cfg,
		api:    api,
		store:  store,
		cache:  cache,
		health: health,
	}
}

// EnsureSession runs once at startup. A stored unexpired record is adopted
// without a fresh exchange; otherwise auto-login performs the initial one.
// ErrAutoLoginDisabled reports a degraded start, not a crash.
func (a *Auth) EnsureSession(ctx context.Context) error {
	now := time.Now()
	record, err := a.store.Current(ctx, now)
	switch {
	case err == nil:
		a.adopt(record)
		cached, cacheErr := a.cache.Get(ctx)
		if cacheErr != nil {
			logs.Warnf("read cached token, err: %+v", cacheErr)
		}
		if cached == "" {
			if putErr := a.cache.Put(ctx, record.Token, record.TTL(now)); putErr != nil {
				logs.Warnf("repopulate token cache, err: %+v", putErr)
			}
		}
		a.health.OnSessionCreated()
		logs.Infof("restored session for %s, expires %s", record.OwnerID, record.ExpiresAt.Format(time.RFC3339))
		return nil

	case stderrors.Is(err, exception.ErrNoStoredSession):
		if !a.cfg.AutoLogin {
			logs.Warn("no stored session and auto login disabled, starting without a token")
			return exception.ErrAutoLoginDisabled
		}
		return a.login(ctx, false)

	default:
		return errors.Wrap(err, "load stored session")
	}
}

// Reauthenticate performs the credential exchange at most once among
// concurrent callers. Losers block until the winner releases and then
// return without retrying; they observe the outcome via session state.
func (a *Auth) Reauthenticate(ctx context.Context, reason string) error {
	if !a.flight.TryLock() {
		a.flight.Lock()
		defer a.flight.Unlock()
		return nil
	}
	defer a.flight.Unlock()

	logs.Infof("re-authenticating, reason: %s", reason)
	return a.login(ctx, true)
}

// Logout invalidates the token broker-side and drops all persisted state.
// Callable without a prior EnsureSession; the stored record is adopted so
// the broker call carries the right token.
func (a *Auth) Logout(ctx context.Context) error {
	if a.Record().Token == "" {
		if record, err := a.store.Current(ctx, time.Now()); err == nil {
			a.adopt(record)
		}
	}
	if err := a.api.InvalidateToken(ctx); err != nil {
		logs.Warnf("invalidate token, err: %+v", err)
	}
	if err := a.cache.Delete(ctx); err != nil {
		logs.Warnf("drop cached token, err: %+v", err)
	}
	if err := a.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear stored session")
	}
	a.mu.Lock()
	a.record = schema.SessionRecord{}
	a.mu.Unlock()
	a.health.HandleSessionExpiry("logged out")
	return nil
}

// Record returns the in-memory session record.
func (a *Auth) Record() schema.SessionRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record
}

func (a *Auth) login(ctx context.Context, reauth bool) error {
	if reauth {
		a.health.OnReAuthStarted()
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, a.cfg.ExchangeTimeout)
	defer cancel()

	grant, err := a.api.ExchangeCredentials(exchangeCtx)
	if err != nil {
		obs.IncReauth(false)
		if reauth {
			a.health.HandleSessionExpiry(fmt.Sprintf("re-authentication failed: %v", err))
		}
		return errors.Wrap(err, "credential exchange")
	}

	now := time.Now()
	record := schema.SessionRecord{
		Token:     grant.Token,
		OwnerID:   grant.OwnerID,
		OwnerName: grant.OwnerName,
		CreatedAt: now,
		ExpiresAt: a.cfg.NextExpiry(now),
	}

	// Persist failures do not void a token the broker already issued; the
	// session stays usable in memory and the next start re-exchanges.
	if err := a.store.Save(ctx, record); err != nil {
		logs.Errorf("persist session record, err: %+v", err)
	}
	if err := a.cache.Put(ctx, record.Token, record.TTL(now)); err != nil {
		logs.Errorf("cache session token, err: %+v", err)
	}

	a.adopt(record)
	obs.IncReauth(true)

	if reauth {
		a.health.OnReAuthCompleted()
	} else {
		a.health.OnSessionCreated()
	}
	logs.Infof("session established for %s (%s), expires %s",
		record.OwnerID, record.OwnerName, record.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *Auth) adopt(record schema.SessionRecord) {
	a.api.SetAccessToken(record.Token)
	a.mu.Lock()
	a.record = record
	a.mu.Unlock()
}
