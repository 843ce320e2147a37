package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	httpclient "github.com/natserract/zcrm-calls/pkg/http"
	"go.uber.org/zap"
)

const (
	tokenPath         = "/oauth/v2/token"
	grantRefreshToken = "refresh_token"
	refreshMaxTries   = 3
)

// RefreshAccessToken exchanges the configured refresh token for a new access token.
// A response without access_token is returned as is; TokenProvider decides what it means.
func (c *Client) RefreshAccessToken(ctx context.Context) (*AuthResponse, error) {
	url, err := httpclient.BuildURL(c.config.AccountsBaseURI, tokenPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token URL: %w", err)
	}
	c.logger.Info("Requesting access token", zap.String("url", url))

	refreshReq := RefreshRequest{
		RefreshToken: c.config.RefreshToken,
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		GrantType:    grantRefreshToken,
	}

	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method: http.MethodPost,
		URL:    url,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body:     refreshReq,
		Context:  ctx,
		MaxTries: refreshMaxTries,
	})
	if err != nil {
		c.logger.Error("Token request failed", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		c.logger.Error("Failed to parse token response", zap.Error(err))
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if authResp.AccessToken == "" {
		c.logger.Warn("Token response has no access token", zap.String("error", authResp.Error))
		return &authResp, nil
	}

	c.logger.Info("Received access token",
		zap.String("token_type", authResp.TokenType),
		zap.String("api_domain", authResp.APIDomain),
		zap.Int("expires_in", authResp.ExpiresIn))

	return &authResp, nil
}
