package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// RESTConfig describes the broker HTTP endpoint and account credentials.
type RESTConfig struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// REST talks to the broker's HTTP API.
type REST struct {
	cfg RESTConfig
	hc  *http.Client

	mu    sync.RWMutex
	token string
}

// NewREST creates a broker client for the configured endpoint.
func NewREST(cfg RESTConfig) *REST {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &REST{
		cfg: cfg,
		hc:  &http.Client{Timeout: timeout},
	}
}

func (r *REST) Name() string {
	if r.cfg.Name == "" {
		return "rest"
	}
	return r.cfg.Name
}

// ExchangeCredentials trades the API key pair for a session token.
func (r *REST) ExchangeCredentials(ctx context.Context) (Grant, error) {
	body, _ := json.Marshal(map[string]string{
		"api_key":    r.cfg.APIKey,
		"api_secret": r.cfg.APISecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/session/token", bytes.NewReader(body))
	if err != nil {
		return Grant{}, errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.hc.Do(req)
	if err != nil {
		return Grant{}, errors.Wrap(exception.ErrBrokerNetwork, err.Error())
	}
	defer res.Body.Close()
	if err := statusError(res); err != nil {
		return Grant{}, errors.Wrap(err, "exchange credentials")
	}

	var out struct {
		Token     string `json:"token"`
		OwnerID   string `json:"owner_id"`
		OwnerName string `json:"owner_name"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Grant{}, errors.Wrap(exception.ErrBrokerMalformedResponse, err.Error())
	}
	if out.Token == "" {
		return Grant{}, errors.Wrap(exception.ErrBrokerMalformedResponse, "empty token in exchange response")
	}
	return Grant{Token: out.Token, OwnerID: out.OwnerID, OwnerName: out.OwnerName}, nil
}

// SetAccessToken swaps the token attached to subsequent requests.
func (r *REST) SetAccessToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// Profile fetches the account profile; callers use it as the health probe.
func (r *REST) Profile(ctx context.Context) (Profile, error) {
	res, err := r.get(ctx, "/user/profile")
	if err != nil {
		return Profile{}, err
	}
	defer res.Body.Close()
	if err := statusError(res); err != nil {
		return Profile{}, errors.Wrap(err, "fetch profile")
	}

	var out struct {
		OwnerID   string `json:"owner_id"`
		OwnerName string `json:"owner_name"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Profile{}, errors.Wrap(exception.ErrBrokerMalformedResponse, err.Error())
	}
	return Profile{OwnerID: out.OwnerID, OwnerName: out.OwnerName}, nil
}

// Positions returns the broker's open positions for the account.
func (r *REST) Positions(ctx context.Context) ([]schema.BrokerPosition, error) {
	res, err := r.get(ctx, "/portfolio/positions")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := statusError(res); err != nil {
		return nil, errors.Wrap(err, "fetch positions")
	}

	var out struct {
		Positions []struct {
			Instrument   string          `json:"instrument"`
			Symbol       string          `json:"symbol"`
			Quantity     int64           `json:"quantity"`
			AveragePrice decimal.Decimal `json:"average_price"`
		} `json:"positions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(exception.ErrBrokerMalformedResponse, err.Error())
	}

	positions := make([]schema.BrokerPosition, 0, len(out.Positions))
	for _, p := range out.Positions {
		if p.Instrument == "" {
			return nil, errors.Wrap(exception.ErrBrokerMalformedResponse, "position missing instrument")
		}
		positions = append(positions, schema.BrokerPosition{
			InstrumentKey: p.Instrument,
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AveragePrice:  p.AveragePrice,
		})
	}
	return positions, nil
}

// InvalidateToken revokes the active token server-side.
func (r *REST) InvalidateToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.cfg.BaseURL+"/session/token", nil)
	if err != nil {
		return errors.Wrap(err, "build invalidate request")
	}
	r.authorize(req)

	res, err := r.hc.Do(req)
	if err != nil {
		return errors.Wrap(exception.ErrBrokerNetwork, err.Error())
	}
	defer res.Body.Close()
	if err := statusError(res); err != nil {
		return errors.Wrap(err, "invalidate token")
	}
	return nil
}

func (r *REST) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request").With("path", path)
	}
	r.authorize(req)

	res, err := r.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(exception.ErrBrokerNetwork, err.Error())
	}
	return res, nil
}

func (r *REST) authorize(req *http.Request) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	req.Header.Set("Authorization", "token "+r.cfg.APIKey+":"+token)
}

func statusError(res *http.Response) error {
	if res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrapf(exception.ErrBrokerAuthorization, "status %d: %s", res.StatusCode, body)
	default:
		return errors.Wrapf(exception.ErrBrokerNetwork, "status %d: %s", res.StatusCode, body)
	}
}
