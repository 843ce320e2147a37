// Package audit records one entry per handled schedule-calls request.
// Entries never contain credentials or lead ids, only their count.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one handled request
type Record struct {
	ID             uuid.UUID
	RequestID      string
	LeadCount      int
	CallOwner      string
	StartTime      string
	Outcome        string
	DownstreamCode string
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

// Recorder persists audit records
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// NopRecorder discards every record
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) error { return nil }

type requestIDKey struct{}

// WithRequestID stores the inbound request id on ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
