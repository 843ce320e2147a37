package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/natserract/zcrm-calls/pkg/zoho"
)

const (
	MessageSuccess        = "Calls scheduled successfully"
	MessageZohoError      = "Zoho API error"
	MessageInternalError  = "Internal Server Error"
	MessageInvalidRequest = "Invalid request"
)

var ErrInvalidRequest = errors.New("invalid request")

// Request is the inbound body of POST /api/schedule-calls
type Request struct {
	LeadIDs   []string `json:"leadIds"`
	StartTime string   `json:"start_time"`
	CallOwner string   `json:"call_owner"`
	Subject   string   `json:"subject"`
	Purpose   string   `json:"purpose"`
	Agenda    string   `json:"agenda"`
}

// Validate checks that the lead ids can be joined into the downstream leadid argument.
func (r Request) Validate() error {
	if len(r.LeadIDs) == 0 {
		return fmt.Errorf("%w: leadIds must not be empty", ErrInvalidRequest)
	}
	for i, id := range r.LeadIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: leadIds[%d] is blank", ErrInvalidRequest, i)
		}
		if strings.Contains(id, zoho.LeadIDSeparator) {
			return fmt.Errorf("%w: leadIds[%d] contains %q", ErrInvalidRequest, i, zoho.LeadIDSeparator)
		}
	}
	return nil
}

// Arguments translates the request into schedule_calls_bulk arguments
func (r Request) Arguments() zoho.ScheduleCallsArguments {
	return zoho.ScheduleCallsArguments{
		LeadID:      strings.Join(r.LeadIDs, zoho.LeadIDSeparator),
		StartTime:   r.StartTime,
		CallOwner:   r.CallOwner,
		CallSubject: r.Subject,
		CallPurpose: r.Purpose,
		CallAgenda:  r.Agenda,
	}
}

type Kind int

const (
	KindSuccess Kind = iota
	KindApplicationError
	KindTransportError
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindApplicationError:
		return "application_error"
	case KindTransportError:
		return "transport_error"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of handling one Request.
// Payload is set for success and application errors, Err for the other kinds.
type Outcome struct {
	Kind    Kind
	Code    string
	Payload json.RawMessage
	Err     error
}

// Response is the JSON body returned to the caller
type Response struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StatusCode maps the outcome to an HTTP status. Application errors are a
// business outcome and stay 200.
func (o Outcome) StatusCode() int {
	switch o.Kind {
	case KindSuccess, KindApplicationError:
		return http.StatusOK
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (o Outcome) Response() Response {
	switch o.Kind {
	case KindSuccess:
		return Response{Message: MessageSuccess, Result: o.Payload}
	case KindApplicationError:
		return Response{Message: MessageZohoError, Result: o.Payload}
	case KindInvalidRequest:
		return Response{Message: MessageInvalidRequest, Error: errString(o.Err)}
	default:
		return Response{Message: MessageInternalError, Error: errString(o.Err)}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
