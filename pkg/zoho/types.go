package zoho

import (
	"encoding/json"
)

// AuthResponse represents the OAuth token response
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	APIDomain   string `json:"api_domain"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	// Error is set instead of AccessToken when the refresh token is rejected.
	Error string `json:"error,omitempty"`
}

// RefreshRequest represents the refresh_token grant sent to the token endpoint
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

// ScheduleCallsArguments are the arguments of the schedule_calls_bulk function.
// LeadID carries every lead id joined with LeadIDSeparator.
type ScheduleCallsArguments struct {
	LeadID      string `json:"leadid"`
	StartTime   string `json:"starttime"`
	CallOwner   string `json:"callowner"`
	CallSubject string `json:"callsubject"`
	CallPurpose string `json:"callpurpose"`
	CallAgenda  string `json:"callagenda"`
}

// FunctionRequest is the envelope for executing a CRM function
type FunctionRequest struct {
	Arguments interface{} `json:"arguments"`
}

// FunctionResponse is the decoded reply of a CRM function execution.
// Raw keeps the body exactly as Zoho sent it.
type FunctionResponse struct {
	Code       string          `json:"code"`
	Message    string          `json:"message,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	StatusCode int             `json:"-"`
	Raw        json.RawMessage `json:"-"`
}

// Succeeded reports whether Zoho accepted the execution
func (r *FunctionResponse) Succeeded() bool {
	return r.Code == CodeSuccess
}
