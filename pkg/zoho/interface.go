package zoho

import "context"

// ZohoClient defines the interface for Zoho CRM API operations
type ZohoClient interface {
	// RefreshAccessToken exchanges the refresh token for an access token
	RefreshAccessToken(ctx context.Context) (*AuthResponse, error)

	// ExecuteFunction runs a CRM function by API name
	ExecuteFunction(ctx context.Context, name string, args interface{}) (*FunctionResponse, error)

	// ScheduleCallsBulk runs the schedule_calls_bulk function
	ScheduleCallsBulk(ctx context.Context, args ScheduleCallsArguments) (*FunctionResponse, error)
}

var _ ZohoClient = (*Client)(nil)
