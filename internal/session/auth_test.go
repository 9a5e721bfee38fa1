package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/schema"
	"main/pkg/exception"
)

type memStore struct {
	mu     sync.Mutex
	record *schema.SessionRecord
	saves  int
}

func (m *memStore) Save(_ context.Context, record schema.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = &record
	m.saves++
	return nil
}

func (m *memStore) Current(_ context.Context, now time.Time) (schema.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil || m.record.Expired(now) {
		return schema.SessionRecord{}, exception.ErrNoStoredSession
	}
	return *m.record, nil
}

func (m *memStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = nil
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type memCache struct {
	mu    sync.Mutex
	token string
	ttl   time.Duration
}

func (m *memCache) Put(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.ttl = ttl
	return nil
}

func (m *memCache) Get(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memCache) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.ttl = 0
	return nil
}

// collect closes the queue and drains whatever was published.
func collect(q *bus.Queue) []schema.Event {
	q.Close()
	var out []schema.Event
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Run(ctx, func(e schema.Event) { out = append(out, e) })
	return out
}

func eventTypes(events []schema.Event) []schema.EventType {
	out := make([]schema.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func newAuthFixture(cfg AuthConfig) (*Auth, *broker.Sim, *memStore, *memCache, *Health, *bus.Queue) {
	sim := broker.NewSim()
	queue := bus.NewQueue(64)
	health := NewHealth(HealthConfig{}, sim, queue)
	store := &memStore{}
	cache := &memCache{}
	auth := NewAuth(cfg, sim, store, cache, health)
	return auth, sim, store, cache, health, queue
}

func TestSingleFlightReauthentication(t *testing.T) {
	auth, sim, store, _, health, _ := newAuthFixture(AuthConfig{AutoLogin: true})
	sim.SetExchangeDelay(200 * time.Millisecond)

	const callers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = auth.Reauthenticate(context.Background(), "test")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, sim.ExchangeCount(), "credential exchange should run exactly once")
	assert.Equal(t, 1, store.saveCount(), "durable record should be written exactly once")
	assert.Equal(t, schema.SessionConnected, health.State())
	assert.Equal(t, sim.IssuedToken(), auth.Record().Token)
}

func TestEnsureSessionRestoresStoredRecord(t *testing.T) {
	auth, sim, store, cache, health, queue := newAuthFixture(AuthConfig{AutoLogin: true})

	stored := schema.SessionRecord{
		Token:     "stored-token",
		OwnerID:   "AB1234",
		OwnerName: "Stored Owner",
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(4 * time.Hour),
	}
	require.NoError(t, store.Save(context.Background(), stored))

	require.NoError(t, auth.EnsureSession(context.Background()))

	assert.Equal(t, 0, sim.ExchangeCount(), "unexpired record should skip the exchange")
	assert.Equal(t, "stored-token", auth.Record().Token)
	assert.Equal(t, schema.SessionConnected, health.State())

	token, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-token", token, "cache should be repopulated")

	types := eventTypes(collect(queue))
	assert.Equal(t, []schema.EventType{schema.EventSessionCreated}, types)
}

func TestEnsureSessionFreshLogin(t *testing.T) {
	auth, sim, store, cache, health, _ := newAuthFixture(AuthConfig{AutoLogin: true})

	require.NoError(t, auth.EnsureSession(context.Background()))

	assert.Equal(t, 1, sim.ExchangeCount())
	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, schema.SessionConnected, health.State())
	assert.NotEmpty(t, auth.Record().Token)

	token, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.Record().Token, token)
}

func TestEnsureSessionDegradedStart(t *testing.T) {
	auth, sim, _, _, health, _ := newAuthFixture(AuthConfig{AutoLogin: false})

	err := auth.EnsureSession(context.Background())
	require.ErrorIs(t, err, exception.ErrAutoLoginDisabled)
	assert.Equal(t, 0, sim.ExchangeCount())
	assert.Equal(t, schema.SessionDisconnected, health.State())
}

func TestFailedReauthenticationExpiresSession(t *testing.T) {
	auth, sim, _, _, health, queue := newAuthFixture(AuthConfig{AutoLogin: true})
	sim.FailExchange(errors.New("exchange rejected"))

	err := auth.Reauthenticate(context.Background(), "test")
	require.Error(t, err)
	assert.Equal(t, schema.SessionExpired, health.State())

	types := eventTypes(collect(queue))
	assert.Equal(t, []schema.EventType{schema.EventSessionExpired}, types)
}

func TestLogoutClearsEverySurface(t *testing.T) {
	auth, sim, store, cache, health, _ := newAuthFixture(AuthConfig{AutoLogin: true})
	require.NoError(t, auth.EnsureSession(context.Background()))

	require.NoError(t, auth.Logout(context.Background()))

	assert.Empty(t, auth.Record().Token)
	assert.Equal(t, schema.SessionExpired, health.State())
	token, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	_, err = store.Current(context.Background(), time.Now())
	assert.ErrorIs(t, err, exception.ErrNoStoredSession)

	// The broker-side token is gone too.
	sim.SetAccessToken(sim.IssuedToken())
	_, err = sim.Profile(context.Background())
	assert.Equal(t, broker.FailureAuthorization, broker.Classify(err))
}

func TestLogoutAdoptsStoredRecord(t *testing.T) {
	auth, sim, store, _, _, _ := newAuthFixture(AuthConfig{AutoLogin: true})

	grant, err := sim.ExchangeCredentials(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), schema.SessionRecord{
		Token:     grant.Token,
		OwnerID:   grant.OwnerID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, auth.Logout(context.Background()))
	assert.Empty(t, sim.IssuedToken(), "stored token must be revoked broker-side")
}

func TestExpiryInstantSharedBetweenStoreAndMemory(t *testing.T) {
	fixed := time.Now().Add(3 * time.Hour).Truncate(time.Second)
	auth, _, store, cache, _, _ := newAuthFixture(AuthConfig{
		AutoLogin:  true,
		NextExpiry: func(time.Time) time.Time { return fixed },
	})

	require.NoError(t, auth.EnsureSession(context.Background()))

	assert.True(t, auth.Record().ExpiresAt.Equal(fixed))
	store.mu.Lock()
	persisted := *store.record
	store.mu.Unlock()
	assert.True(t, persisted.ExpiresAt.Equal(fixed), "persisted expiry should match in-memory expiry")

	cache.mu.Lock()
	ttl := cache.ttl
	cache.mu.Unlock()
	assert.InDelta(t, (3 * time.Hour).Seconds(), ttl.Seconds(), 2, "cache ttl should align to the expiry instant")
}
