package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"main/internal/schema"
	"main/pkg/exception"
)

// Sim is an in-memory broker used for paper trading and tests. Calls
// made with a stale or revoked token fail with an authorization error,
// matching how a real broker rejects expired sessions.
type Sim struct {
	mu        sync.Mutex
	profile   Profile
	positions []schema.BrokerPosition

	issued   string
	attached string

	exchanges   int
	exchangeErr error
	delay       time.Duration
	probeErrs   []error
}

// NewSim creates a simulated broker with a default account.
func NewSim() *Sim {
	return &Sim{
		profile: Profile{OwnerID: "SIM0001", OwnerName: "Simulated Account"},
	}
}

func (s *Sim) Name() string { return "sim" }

// ExchangeCredentials issues a fresh token, revoking any prior one.
func (s *Sim) ExchangeCredentials(ctx context.Context) (Grant, error) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Grant{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges++
	if s.exchangeErr != nil {
		return Grant{}, s.exchangeErr
	}
	s.issued = uuid.NewString()
	return Grant{Token: s.issued, OwnerID: s.profile.OwnerID, OwnerName: s.profile.OwnerName}, nil
}

func (s *Sim) SetAccessToken(token string) {
	s.mu.Lock()
	s.attached = token
	s.mu.Unlock()
}

func (s *Sim) Profile(ctx context.Context) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.probeErrs) > 0 {
		err := s.probeErrs[0]
		s.probeErrs = s.probeErrs[1:]
		return Profile{}, err
	}
	if err := s.checkToken(); err != nil {
		return Profile{}, err
	}
	return s.profile, nil
}

func (s *Sim) Positions(ctx context.Context) ([]schema.BrokerPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkToken(); err != nil {
		return nil, err
	}
	out := make([]schema.BrokerPosition, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

// InvalidateToken revokes the issued token; later calls fail until the
// next exchange.
func (s *Sim) InvalidateToken(ctx context.Context) error {
	s.mu.Lock()
	s.issued = ""
	s.mu.Unlock()
	return nil
}

func (s *Sim) checkToken() error {
	if s.issued == "" || s.attached != s.issued {
		return exception.ErrBrokerTokenRevoked
	}
	return nil
}

// SetPositions replaces the broker-side position book.
func (s *Sim) SetPositions(positions []schema.BrokerPosition) {
	s.mu.Lock()
	s.positions = make([]schema.BrokerPosition, len(positions))
	copy(s.positions, positions)
	s.mu.Unlock()
}

// SetProfile replaces the simulated account identity.
func (s *Sim) SetProfile(p Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

// FailProbes queues errors returned by upcoming Profile calls.
func (s *Sim) FailProbes(errs ...error) {
	s.mu.Lock()
	s.probeErrs = append(s.probeErrs, errs...)
	s.mu.Unlock()
}

// FailExchange makes credential exchanges fail until cleared with nil.
func (s *Sim) FailExchange(err error) {
	s.mu.Lock()
	s.exchangeErr = err
	s.mu.Unlock()
}

// SetExchangeDelay injects latency into credential exchanges.
func (s *Sim) SetExchangeDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// ExchangeCount reports how many exchanges were attempted.
func (s *Sim) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// IssuedToken returns the token from the most recent exchange.
func (s *Sim) IssuedToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}
