package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBulkheadFull is returned by Stream when no bulkhead permit is available.
// Complete degrades to the fallback response instead.
var ErrBulkheadFull = errors.New("llm bulkhead full")

// ResilienceConfig tunes the decorator. Zero values take the defaults.
type ResilienceConfig struct {
	// MaxConcurrent bounds in-flight provider calls (bulkhead).
	MaxConcurrent int
	// RequestsPerSecond and Burst parameterize the token bucket.
	RequestsPerSecond float64
	Burst             int
	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit; BreakerCooldown is the open-state hold before a probe.
	BreakerFailureThreshold uint32
	BreakerCooldown         time.Duration
	// MaxAttempts bounds delegate attempts per Complete call (1 = no
	// retry). RetryBaseDelay doubles per attempt.
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

func (c ResilienceConfig) withDefaults() ResilienceConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// ResilientClient decorates a delegate Client with, outermost first:
// bulkhead, rate limiter, circuit breaker, retry. Complete degrades to a
// synthetic fallback response on bulkhead-full, open circuit, and retry
// exhaustion; rate-limit errors and context cancellation propagate.
// Stream applies only bulkhead, rate limiter, and circuit breaker at open.
type ResilientClient struct {
	delegate Client
	cfg      ResilienceConfig
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewResilientClient wraps delegate with the resilience policies.
func NewResilientClient(delegate Client, cfg ResilienceConfig) *ResilientClient {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "llm-resilient")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-provider",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// Provider pushback and caller cancellation are not provider
		// failures; they must not open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || IsRateLimit(err) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &ResilientClient{
		delegate: delegate,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:  breaker,
		logger:   logger,
	}
}

// Complete runs one completion through the full policy chain.
func (r *ResilientClient) Complete(ctx context.Context, req *AiRequest) (*AiResponse, error) {
	if !r.sem.TryAcquire(1) {
		r.logger.Warn("Bulkhead full, returning fallback response")
		return fallbackResponse(req), nil
	}
	defer r.sem.Release(1)

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.completeWithRetry(ctx, req)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			r.logger.Warn("Circuit open, returning fallback response")
			return fallbackResponse(req), nil
		case IsRateLimit(err):
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			r.logger.Warn("Provider attempts exhausted, returning fallback response", "error", err)
			return fallbackResponse(req), nil
		}
	}
	return out.(*AiResponse), nil
}

// completeWithRetry attempts the delegate up to MaxAttempts times with
// exponential backoff. Rate-limit errors and cancellation are never retried.
func (r *ResilientClient) completeWithRetry(ctx context.Context, req *AiRequest) (*AiResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		resp, err := r.delegate.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if IsRateLimit(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.cfg.RetryBaseDelay << (attempt - 1)
		r.logger.Debug("Provider call failed, backing off",
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("provider failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// Stream opens a streaming completion through bulkhead, rate limiter, and
// circuit breaker. There is no retry and no fallback; failures return errors.
// The bulkhead permit is held until the stream drains.
func (r *ResilientClient) Stream(ctx context.Context, req *AiRequest) (<-chan StreamChunk, error) {
	if !r.sem.TryAcquire(1) {
		return nil, ErrBulkheadFull
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.sem.Release(1)
		return nil, err
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.delegate.Stream(ctx, req)
	})
	if err != nil {
		r.sem.Release(1)
		return nil, err
	}
	src := out.(<-chan StreamChunk)

	dst := make(chan StreamChunk, streamBuffer)
	go func() {
		defer r.sem.Release(1)
		defer close(dst)
		for chunk := range src {
			select {
			case dst <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return dst, nil
}

// Healthy delegates to the wrapped client.
func (r *ResilientClient) Healthy(ctx context.Context) bool {
	return r.delegate.Healthy(ctx)
}

// fallbackResponse is the synthetic answer returned when the provider is
// unavailable. Identified by FallbackID.
func fallbackResponse(req *AiRequest) *AiResponse {
	return &AiResponse{
		ID:    FallbackID,
		Model: req.Model,
		Choices: []AiChoice{{
			Message: AiMessage{
				Role:    RoleAssistant,
				Content: "LLM service unavailable",
			},
			FinishReason: "fallback",
		}},
	}
}
