package zoho

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRefresher hands out tok-1, tok-2, ... and can be made to block or fail.
type fakeRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	resp *AuthResponse
	err  error
}

func (f *fakeRefresher) RefreshAccessToken(ctx context.Context) (*AuthResponse, error) {
	n := f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &AuthResponse{AccessToken: fmt.Sprintf("tok-%d", n), ExpiresIn: 3600}, nil
}

func (f *fakeRefresher) fail(err error, resp *AuthResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.resp = resp
}

func newProvider(t *testing.T, r Refresher, clock *fakeClock, opts ...TokenOption) *TokenProvider {
	t.Helper()
	opts = append([]TokenOption{WithClock(clock.Now), WithTokenLogger(zaptest.NewLogger(t))}, opts...)
	return NewTokenProvider(r, opts...)
}

func TestTokenProvider_FirstAcquireRefreshes(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	assert.False(t, p.Status().Cached)

	cred, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Value)
	assert.Equal(t, clock.Now(), cred.IssuedAt)
	assert.Equal(t, time.Hour, cred.TTL)
	assert.Equal(t, int32(1), r.calls.Load())

	st := p.Status()
	assert.True(t, st.Cached)
	assert.Equal(t, clock.Now().Add(time.Hour), st.ExpiresAt)
	assert.Equal(t, int64(1), st.Refreshes)
}

func TestTokenProvider_ReusesTokenWithinWindow(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Minute)
		cred, err := p.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", cred.Value)
	}
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestTokenProvider_RefreshesInsideSafetyMargin(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Minute - time.Second)
	cred, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Value)

	// Exactly TTL minus margin is no longer usable.
	clock.Advance(time.Second)
	cred, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", cred.Value)
	assert.Equal(t, clock.Now(), cred.IssuedAt)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestTokenProvider_ReturnedCredentialIsNeverExpired(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock, WithTTL(10*time.Minute), WithRefreshMargin(time.Minute))

	for i := 0; i < 50; i++ {
		cred, err := p.Acquire(context.Background())
		require.NoError(t, err)
		assert.Less(t, clock.Now().Sub(cred.IssuedAt), cred.TTL)
		clock.Advance(47 * time.Second)
	}
}

func TestTokenProvider_ConcurrentCallersShareOneRefresh(t *testing.T) {
	const callers = 32

	clock := newFakeClock()
	r := &fakeRefresher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newProvider(t, r, clock)

	var (
		wg     conc.WaitGroup
		mu     sync.Mutex
		values = make(map[string]int)
	)
	for i := 0; i < callers; i++ {
		wg.Go(func() {
			cred, err := p.Acquire(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			values[cred.Value]++
			mu.Unlock()
		})
	}

	<-r.started
	// Let the remaining callers reach the flight before it completes.
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, map[string]int{"tok-1": callers}, values)
}

func TestTokenProvider_OneRefreshPerExpiryCycle(t *testing.T) {
	const callers = 16

	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	for cycle := 1; cycle <= 3; cycle++ {
		var wg conc.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Go(func() {
				cred, err := p.Acquire(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("tok-%d", cycle), cred.Value)
			})
		}
		wg.Wait()
		assert.Equal(t, int32(cycle), r.calls.Load())

		// Straddle the expiry boundary.
		clock.Advance(time.Hour)
	}
}

func TestTokenProvider_ConcurrentCallersShareFailure(t *testing.T) {
	const callers = 8

	clock := newFakeClock()
	r := &fakeRefresher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r.fail(errors.New("connection refused"), nil)
	p := newProvider(t, r, clock)

	var (
		wg       conc.WaitGroup
		failures atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Go(func() {
			_, err := p.Acquire(context.Background())
			if errors.Is(err, ErrRefreshFailed) {
				failures.Add(1)
			}
		})
	}

	<-r.started
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()

	assert.Equal(t, int32(callers), failures.Load())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestTokenProvider_MissingAccessTokenKeepsPreviousCredential(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	r.fail(nil, &AuthResponse{Error: "invalid_code"})

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Contains(t, err.Error(), "invalid_code")

	var refreshErr *RefreshError
	require.True(t, errors.As(err, &refreshErr))

	st := p.Status()
	assert.True(t, st.Cached)
	assert.Equal(t, first.IssuedAt, st.IssuedAt)
	assert.Equal(t, int64(1), st.Refreshes)

	// Recovery installs a new credential.
	r.fail(nil, nil)
	cred, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, cred.Value)
}

func TestTokenProvider_TransportErrorIsRefreshFailed(t *testing.T) {
	clock := newFakeClock()
	cause := errors.New("dial tcp: connection refused")
	r := &fakeRefresher{}
	r.fail(cause, nil)
	p := newProvider(t, r, clock)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, cause)
	assert.False(t, p.Status().Cached)
}

func TestTokenProvider_BootstrapTokenServedUntilStale(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock, WithBootstrapToken("seed", clock.Now()))

	cred, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seed", cred.Value)
	assert.Equal(t, time.Hour, cred.TTL)
	assert.Zero(t, r.calls.Load())

	clock.Advance(59 * time.Minute)
	cred, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Value)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestTokenProvider_CancelledCallerStopsWaiting(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	// The detached refresh outlives the cancelled caller, keep it off t.Log.
	p := newProvider(t, r, clock, WithTokenLogger(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	<-r.started
	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, context.Canceled)

	// The refresh itself was not cancelled and still installs its token.
	close(r.release)
	require.Eventually(t, func() bool { return p.Status().Cached }, time.Second, 5*time.Millisecond)

	cred, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Value)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestTokenProvider_RefreshTimeout(t *testing.T) {
	clock := newFakeClock()
	r := &blockingRefresher{}
	p := newProvider(t, r, clock, WithRefreshTimeout(20*time.Millisecond))

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingRefresher struct{}

func (blockingRefresher) RefreshAccessToken(ctx context.Context) (*AuthResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTokenProvider_UsableTokenDoesNotWaitForRefresh(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cred, err := p.Acquire(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "tok-1", cred.Value)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire blocked on a usable credential")
	}
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestNewTokenProvider_MarginNotShorterThanTTL(t *testing.T) {
	clock := newFakeClock()
	r := &fakeRefresher{}
	p := newProvider(t, r, clock, WithTTL(time.Minute), WithRefreshMargin(2*time.Minute))

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), r.calls.Load())
}
