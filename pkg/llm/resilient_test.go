package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDelegate scripts delegate behavior and counts invocations.
type stubDelegate struct {
	mu       sync.Mutex
	calls    atomic.Int64
	errs     []error // consumed per call; nil entry means success
	blocked  chan struct{}
	healthy  bool
	streamCh chan StreamChunk
}

func (d *stubDelegate) Complete(ctx context.Context, req *AiRequest) (*AiResponse, error) {
	d.calls.Add(1)
	if d.blocked != nil {
		select {
		case <-d.blocked:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	var err error
	if len(d.errs) > 0 {
		err = d.errs[0]
		d.errs = d.errs[1:]
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &AiResponse{
		ID:      "cmpl-real",
		Model:   req.Model,
		Choices: []AiChoice{{Message: AiMessage{Role: RoleAssistant, Content: "real answer"}}},
	}, nil
}

func (d *stubDelegate) Stream(ctx context.Context, req *AiRequest) (<-chan StreamChunk, error) {
	d.calls.Add(1)
	if d.streamCh == nil {
		ch := make(chan StreamChunk)
		close(ch)
		return ch, nil
	}
	return d.streamCh, nil
}

func (d *stubDelegate) Healthy(ctx context.Context) bool { return d.healthy }

func repeatErr(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

// fastConfig keeps the policies deterministic and the test quick.
func fastConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxConcurrent:           4,
		RequestsPerSecond:       1000,
		Burst:                   1000,
		BreakerFailureThreshold: 5,
		BreakerCooldown:         time.Minute,
		MaxAttempts:             1,
		RetryBaseDelay:          time.Millisecond,
	}
}

func TestResilient_PassesThroughSuccess(t *testing.T) {
	delegate := &stubDelegate{}
	client := NewResilientClient(delegate, fastConfig())

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "cmpl-real", resp.ID)
	assert.False(t, resp.IsFallback())
	assert.Equal(t, int64(1), delegate.calls.Load())
}

func TestResilient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	serverErr := &AiHTTPError{StatusCode: 503, Body: "boom"}
	delegate := &stubDelegate{errs: repeatErr(serverErr, 10)}
	client := NewResilientClient(delegate, fastConfig())

	// Five consecutive failures trip the breaker; each degrades to fallback.
	for i := 0; i < 5; i++ {
		resp, err := client.Complete(context.Background(), testRequest())
		require.NoError(t, err)
		assert.True(t, resp.IsFallback())
	}
	require.Equal(t, int64(5), delegate.calls.Load())

	// The sixth call short-circuits without reaching the delegate.
	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.IsFallback())
	assert.Equal(t, "LLM service unavailable", resp.Content())
	assert.Equal(t, int64(5), delegate.calls.Load())
}

func TestResilient_RetriesThenSucceeds(t *testing.T) {
	delegate := &stubDelegate{errs: []error{&AiHTTPError{StatusCode: 500}, &AiHTTPError{StatusCode: 500}}}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	client := NewResilientClient(delegate, cfg)

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, resp.IsFallback())
	assert.Equal(t, int64(3), delegate.calls.Load())
}

func TestResilient_RetryExhaustionDegradesToFallback(t *testing.T) {
	delegate := &stubDelegate{errs: repeatErr(&AiHTTPError{StatusCode: 500}, 3)}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	client := NewResilientClient(delegate, cfg)

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.IsFallback())
	assert.Equal(t, int64(3), delegate.calls.Load())
}

func TestResilient_RateLimitPropagatesWithoutRetry(t *testing.T) {
	delegate := &stubDelegate{errs: repeatErr(&AiRateLimitError{}, 5)}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	client := NewResilientClient(delegate, cfg)

	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, int64(1), delegate.calls.Load(), "rate limit is never retried")
}

func TestResilient_RateLimitDoesNotTripBreaker(t *testing.T) {
	delegate := &stubDelegate{errs: repeatErr(&AiRateLimitError{}, 10)}
	client := NewResilientClient(delegate, fastConfig())

	for i := 0; i < 8; i++ {
		_, err := client.Complete(context.Background(), testRequest())
		require.Error(t, err)
		assert.True(t, IsRateLimit(err))
	}
	// All calls reached the delegate; the circuit never opened.
	assert.Equal(t, int64(8), delegate.calls.Load())
}

func TestResilient_BulkheadFullDegradesToFallback(t *testing.T) {
	release := make(chan struct{})
	delegate := &stubDelegate{blocked: release}
	cfg := fastConfig()
	cfg.MaxConcurrent = 2
	client := NewResilientClient(delegate, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Complete(context.Background(), testRequest())
		}()
	}
	// Let the two in-flight calls occupy the bulkhead.
	require.Eventually(t, func() bool {
		return delegate.calls.Load() == 2
	}, time.Second, 5*time.Millisecond)

	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, resp.IsFallback())
	assert.Equal(t, int64(2), delegate.calls.Load())

	close(release)
	wg.Wait()
}

func TestResilient_CancellationPropagates(t *testing.T) {
	delegate := &stubDelegate{blocked: make(chan struct{})}
	client := NewResilientClient(delegate, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.Complete(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestResilient_StreamBulkheadFullIsAnError(t *testing.T) {
	delegate := &stubDelegate{streamCh: make(chan StreamChunk)}
	cfg := fastConfig()
	cfg.MaxConcurrent = 1
	client := NewResilientClient(delegate, cfg)

	// First stream holds the only permit until drained.
	_, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrBulkheadFull)

	// Draining the first stream releases the permit.
	close(delegate.streamCh)
	require.Eventually(t, func() bool {
		_, err := client.Stream(context.Background(), testRequest())
		return err == nil || err != ErrBulkheadFull
	}, time.Second, 5*time.Millisecond)
}

func TestResilient_StreamForwardsChunks(t *testing.T) {
	src := make(chan StreamChunk, 2)
	src <- StreamChunk{Content: "a"}
	src <- StreamChunk{Content: "b", FinishReason: FinishReasonStop}
	close(src)

	delegate := &stubDelegate{streamCh: src}
	client := NewResilientClient(delegate, fastConfig())

	chunks, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)

	var content string
	for chunk := range chunks {
		content += chunk.Content
	}
	assert.Equal(t, "ab", content)
}

func TestResilient_HealthyDelegates(t *testing.T) {
	assert.True(t, NewResilientClient(&stubDelegate{healthy: true}, fastConfig()).Healthy(context.Background()))
	assert.False(t, NewResilientClient(&stubDelegate{healthy: false}, fastConfig()).Healthy(context.Background()))
}
