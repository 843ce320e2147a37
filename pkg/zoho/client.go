// Package zoho provides a client for the Zoho CRM REST API.
//
// The client authenticates with a long-lived OAuth2 refresh token. Access
// tokens are cached by a TokenProvider and refreshed shortly before they
// expire; concurrent requests arriving while the token is stale share a
// single refresh. Function execution (the /crm/v2/functions endpoint) is the
// only CRM resource this package covers.
package zoho

import (
	"time"

	"github.com/natserract/zcrm-calls/pkg/config"
	httpclient "github.com/natserract/zcrm-calls/pkg/http"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the main client for interacting with the Zoho CRM API
type Client struct {
	config     *config.Config
	httpClient *httpclient.Client
	tokens     *TokenProvider
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClientWithLogger creates a new Zoho client with a custom logger
func NewClientWithLogger(cfg *config.Config, logger *zap.Logger) *Client {
	c := &Client{
		config:     cfg,
		httpClient: httpclient.NewClientWithLogger(logger, httpclient.WithTimeout(cfg.HTTPTimeout)),
		logger:     logger,
	}

	if cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	c.tokens = NewTokenProvider(c,
		WithTTL(cfg.TokenTTL),
		WithRefreshMargin(cfg.RefreshMargin),
		WithRefreshTimeout(cfg.RefreshTimeout),
		WithBootstrapToken(cfg.AccessToken, time.Now()),
		WithTokenLogger(logger),
	)

	return c
}

// Tokens returns the access token cache used by this client
func (c *Client) Tokens() *TokenProvider {
	return c.tokens
}
