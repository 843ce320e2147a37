package audit

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultAsyncWorkers is the number of concurrent audit writes
const DefaultAsyncWorkers = 4

// AsyncRecorder moves audit writes off the request path. Record blocks only
// when every worker is busy.
type AsyncRecorder struct {
	next   Recorder
	pool   *pool.Pool
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsyncRecorder wraps next with a bounded worker pool
func NewAsyncRecorder(next Recorder, workers int, logger *zap.Logger) *AsyncRecorder {
	if workers <= 0 {
		workers = DefaultAsyncWorkers
	}
	return &AsyncRecorder{
		next:   next,
		pool:   pool.New().WithMaxGoroutines(workers),
		logger: logger,
	}
}

// Record queues rec and always returns nil; write failures are logged.
// Records arriving after Wait are dropped.
func (r *AsyncRecorder) Record(ctx context.Context, rec Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("Audit recorder closed, dropping record",
			zap.String("id", rec.ID.String()),
			zap.String("request_id", rec.RequestID))
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	r.pool.Go(func() {
		if err := r.next.Record(ctx, rec); err != nil {
			r.logger.Warn("Failed to write audit record",
				zap.String("id", rec.ID.String()),
				zap.String("request_id", rec.RequestID),
				zap.Error(err))
		}
	})
	return nil
}

// Wait blocks until queued records are written. Later calls to Record are
// dropped, and calling Wait again is a no-op.
func (r *AsyncRecorder) Wait() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.Wait()
}
