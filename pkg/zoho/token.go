package zoho

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTokenTTL      = time.Hour
	DefaultRefreshMargin = 60 * time.Second

	refreshKey = "access_token"
)

var (
	// ErrRefreshFailed matches every error returned by TokenProvider.Acquire.
	ErrRefreshFailed = errors.New("access token refresh failed")
	// ErrNoAccessToken is the cause when the token endpoint answers without an access_token.
	ErrNoAccessToken = errors.New("token response has no access_token")
)

// RefreshError wraps the reason a refresh could not complete.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Cause)
}

func (e *RefreshError) Unwrap() error { return e.Cause }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// Credential is an access token together with the moment it was obtained.
type Credential struct {
	Value    string
	IssuedAt time.Time
	TTL      time.Duration
}

// ExpiresAt is the assumed hard expiry of the credential
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

func (c Credential) usable(now time.Time, margin time.Duration) bool {
	return c.Value != "" && now.Sub(c.IssuedAt) < c.TTL-margin
}

// Refresher exchanges the long-lived refresh token for a new access token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (*AuthResponse, error)
}

// TokenStatus describes the cached credential without exposing it.
type TokenStatus struct {
	Cached    bool      `json:"cached"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Refreshes int64     `json:"refreshes"`
}

// TokenProvider caches one access token and refreshes it on demand.
//
// A held credential is served while now-IssuedAt < TTL-margin. Once it goes
// stale the next Acquire refreshes it; concurrent callers share that single
// refresh and its result. A failed refresh leaves the previous credential in
// place. Readers of a usable credential never block.
type TokenProvider struct {
	refresher Refresher
	current   atomic.Pointer[Credential]
	flight    singleflight.Group
	refreshes atomic.Int64

	ttl            time.Duration
	margin         time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

type TokenOption func(*TokenProvider)

// WithTTL sets the lifetime assumed for every refreshed token.
func WithTTL(ttl time.Duration) TokenOption {
	return func(p *TokenProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithRefreshMargin sets how long before expiry a token is considered stale.
func WithRefreshMargin(margin time.Duration) TokenOption {
	return func(p *TokenProvider) {
		if margin >= 0 {
			p.margin = margin
		}
	}
}

// WithRefreshTimeout bounds a single in-flight refresh. Zero means no bound.
func WithRefreshTimeout(d time.Duration) TokenOption {
	return func(p *TokenProvider) { p.refreshTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBootstrapToken seeds the cache with a token obtained outside the process.
func WithBootstrapToken(value string, issuedAt time.Time) TokenOption {
	return func(p *TokenProvider) {
		if value == "" {
			return
		}
		p.current.Store(&Credential{Value: value, IssuedAt: issuedAt})
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger *zap.Logger) TokenOption {
	return func(p *TokenProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewTokenProvider(refresher Refresher, opts ...TokenOption) *TokenProvider {
	p := &TokenProvider{
		refresher: refresher,
		ttl:       DefaultTokenTTL,
		margin:    DefaultRefreshMargin,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.margin >= p.ttl {
		p.margin = 0
	}
	// A bootstrap token gets the same lifetime as refreshed ones.
	if cred := p.current.Load(); cred != nil && cred.TTL == 0 {
		p.current.Store(&Credential{Value: cred.Value, IssuedAt: cred.IssuedAt, TTL: p.ttl})
	}
	return p
}

// Acquire returns a credential that stays valid for at least the refresh
// margin, refreshing it first when needed.
func (p *TokenProvider) Acquire(ctx context.Context) (Credential, error) {
	if cred, ok := p.cached(); ok {
		return cred, nil
	}

	ch := p.flight.DoChan(refreshKey, func() (interface{}, error) {
		return p.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		if res.Shared {
			p.logger.Debug("Joined in-flight access token refresh")
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, &RefreshError{Cause: ctx.Err()}
	}
}

// Status reports the cached credential's timestamps and the refresh count.
func (p *TokenProvider) Status() TokenStatus {
	st := TokenStatus{Refreshes: p.refreshes.Load()}
	if cred := p.current.Load(); cred != nil {
		st.Cached = true
		st.IssuedAt = cred.IssuedAt
		st.ExpiresAt = cred.ExpiresAt()
	}
	return st
}

func (p *TokenProvider) cached() (Credential, bool) {
	cred := p.current.Load()
	if cred == nil || !cred.usable(p.now(), p.margin) {
		return Credential{}, false
	}
	return *cred, true
}

// refresh runs inside the single flight. It checks the cache again because a
// flight that finished just before this one started may already have
// installed a fresh credential.
func (p *TokenProvider) refresh(ctx context.Context) (Credential, error) {
	if cred, ok := p.cached(); ok {
		return cred, nil
	}

	if p.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.refreshTimeout)
		defer cancel()
	}

	started := p.now()
	p.logger.Info("Refreshing access token")

	resp, err := p.refresher.RefreshAccessToken(ctx)
	if err != nil {
		p.logger.Error("Failed to refresh access token", zap.Error(err))
		return Credential{}, &RefreshError{Cause: err}
	}
	if resp == nil || resp.AccessToken == "" {
		cause := ErrNoAccessToken
		if resp != nil && resp.Error != "" {
			cause = fmt.Errorf("%w: %s", ErrNoAccessToken, resp.Error)
		}
		p.logger.Error("Token endpoint returned no access token", zap.Error(cause))
		return Credential{}, &RefreshError{Cause: cause}
	}

	cred := &Credential{Value: resp.AccessToken, IssuedAt: started, TTL: p.ttl}
	p.current.Store(cred)
	p.refreshes.Add(1)

	p.logger.Info("Access token refreshed",
		zap.Duration("ttl", p.ttl),
		zap.Time("expires_at", cred.ExpiresAt()))

	return *cred, nil
}
