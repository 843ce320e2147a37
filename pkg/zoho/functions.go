package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	httpclient "github.com/natserract/zcrm-calls/pkg/http"
	"go.uber.org/zap"
)

const (
	// ScheduleCallsBulkFunction is the API name of the bulk call scheduling function.
	ScheduleCallsBulkFunction = "schedule_calls_bulk"

	// LeadIDSeparator joins lead ids into the single leadid argument.
	LeadIDSeparator = "|||"

	// CodeSuccess is the code Zoho returns for a successful execution.
	CodeSuccess = "SUCCESS"

	authScheme = "Zoho-oauthtoken"
)

// ErrDownstream wraps failures to reach a CRM function or to read its reply.
var ErrDownstream = errors.New("zoho function call failed")

// ExecuteFunction runs a CRM function with the given arguments. Any JSON reply
// is returned, whatever its HTTP status; the caller inspects Code. Errors wrap
// ErrRefreshFailed when no token could be obtained and ErrDownstream otherwise.
// The call is attempted once: function executions are not idempotent.
func (c *Client) ExecuteFunction(ctx context.Context, name string, args interface{}) (*FunctionResponse, error) {
	// Acquire only after the limiter wait so a queued call never holds a stale token.
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("Rate limiter wait aborted", zap.Error(err), zap.String("function", name))
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrDownstream, err)
		}
	}

	cred, err := c.tokens.Acquire(ctx)
	if err != nil {
		c.logger.Error("Failed to get access token", zap.Error(err))
		return nil, err
	}

	endpoint, err := httpclient.BuildURL(c.config.APIBaseURI, fmt.Sprintf("/crm/v2/functions/%s/actions/execute", name), nil)
	if err != nil {
		c.logger.Error("Failed to build URL", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to build URL: %v", ErrDownstream, err)
	}

	headers := map[string]string{
		"Authorization": fmt.Sprintf("%s %s", authScheme, cred.Value),
		"Content-Type":  "application/json",
	}

	c.logger.Debug("Making POST request", zap.String("endpoint", endpoint))
	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method:               http.MethodPost,
		URL:                  endpoint,
		Headers:              headers,
		Body:                 FunctionRequest{Arguments: args},
		Context:              ctx,
		MaxTries:             1,
		ReturnErrorResponses: true,
	})
	if err != nil {
		c.logger.Error("Execute function request failed", zap.Error(err), zap.String("function", name))
		return nil, fmt.Errorf("%w: %v", ErrDownstream, err)
	}

	if !json.Valid(resp.Body) {
		c.logger.Error("Execute function returned a non-JSON body",
			zap.String("function", name),
			zap.Int("status_code", resp.StatusCode),
			zap.Int("body_bytes", len(resp.Body)))
		return nil, fmt.Errorf("%w: status %d: response is not valid JSON", ErrDownstream, resp.StatusCode)
	}

	fnResp := FunctionResponse{StatusCode: resp.StatusCode, Raw: json.RawMessage(resp.Body)}
	// Bodies that are valid JSON but not an object leave Code empty.
	_ = json.Unmarshal(resp.Body, &fnResp)

	c.logger.Info("Executed function",
		zap.String("function", name),
		zap.Int("status_code", resp.StatusCode),
		zap.String("code", fnResp.Code))

	return &fnResp, nil
}

// ScheduleCallsBulk runs the schedule_calls_bulk function
func (c *Client) ScheduleCallsBulk(ctx context.Context, args ScheduleCallsArguments) (*FunctionResponse, error) {
	return c.ExecuteFunction(ctx, ScheduleCallsBulkFunction, args)
}
