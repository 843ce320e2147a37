package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/natserract/zcrm-calls/pkg/audit"
	"github.com/natserract/zcrm-calls/pkg/zoho"
	"go.uber.org/zap"
)

// FunctionClient runs the schedule_calls_bulk function
type FunctionClient interface {
	ScheduleCallsBulk(ctx context.Context, args zoho.ScheduleCallsArguments) (*zoho.FunctionResponse, error)
}

// Service turns schedule-calls requests into one downstream function call each
type Service struct {
	client   FunctionClient
	recorder audit.Recorder
	logger   *zap.Logger
}

// NewService creates a new scheduling service. A nil recorder disables auditing.
func NewService(client FunctionClient, recorder audit.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		client:   client,
		recorder: recorder,
		logger:   logger,
	}
}

// Handle validates req, calls Zoho once and maps the reply. It never returns
// an error: every failure is folded into the Outcome.
func (s *Service) Handle(ctx context.Context, req Request) Outcome {
	start := time.Now()
	requestID := audit.RequestIDFromContext(ctx)
	logger := s.logger.With(zap.String("request_id", requestID))

	outcome := s.handle(ctx, req, logger)

	rec := audit.Record{
		ID:             uuid.New(),
		RequestID:      requestID,
		LeadCount:      len(req.LeadIDs),
		CallOwner:      req.CallOwner,
		StartTime:      req.StartTime,
		Outcome:        outcome.Kind.String(),
		DownstreamCode: outcome.Code,
		Error:          errString(outcome.Err),
		Duration:       time.Since(start),
		CreatedAt:      start,
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		logger.Warn("Failed to record audit entry", zap.Error(err))
	}

	return outcome
}

func (s *Service) handle(ctx context.Context, req Request, logger *zap.Logger) Outcome {
	if err := req.Validate(); err != nil {
		logger.Info("Rejected schedule calls request", zap.Error(err))
		return Outcome{Kind: KindInvalidRequest, Err: err}
	}

	args := req.Arguments()
	logger.Info("Sending schedule calls request to Zoho",
		zap.Int("lead_count", len(req.LeadIDs)),
		zap.String("start_time", args.StartTime),
		zap.String("call_owner", args.CallOwner),
		zap.String("subject", args.CallSubject))
	logger.Debug("Schedule calls lead ids", zap.String("leadid", args.LeadID))

	resp, err := s.client.ScheduleCallsBulk(ctx, args)
	if err != nil {
		if errors.Is(err, zoho.ErrRefreshFailed) {
			logger.Error("Could not obtain Zoho access token", zap.Error(err))
		} else {
			logger.Error("Zoho function call failed", zap.Error(err))
		}
		return Outcome{Kind: KindTransportError, Err: err}
	}

	if resp.Succeeded() {
		logger.Info("Calls scheduled", zap.Int("lead_count", len(req.LeadIDs)))
		return Outcome{Kind: KindSuccess, Code: resp.Code, Payload: resp.Raw}
	}

	logger.Warn("Zoho reported an error",
		zap.String("code", resp.Code),
		zap.Int("status_code", resp.StatusCode))
	return Outcome{Kind: KindApplicationError, Code: resp.Code, Payload: resp.Raw}
}
