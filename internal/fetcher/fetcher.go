// Package fetcher wraps a single-shot Transport with pacing and bounded
// linear retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/metrics"
	"github.com/JakeFAU/delta-harvester/internal/telemetry"
)

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, locator string) error
}

// Retrying is a harvest.Fetcher that retries failed round trips a fixed
// number of times with a fixed delay between them.
type Retrying struct {
	transport harvest.Transport
	policy    harvest.LinearRetryPolicy
	limiter   Limiter
	logger    *zap.Logger
}

var _ harvest.Fetcher = (*Retrying)(nil)

// New builds a Retrying fetcher. limiter may be nil.
func New(transport harvest.Transport, policy harvest.LinearRetryPolicy, limiter Limiter, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		transport: transport,
		policy:    policy,
		limiter:   limiter,
		logger:    logger,
	}
}

// Fetch retrieves req.Locator. After MaxRetries+1 failed attempts it returns
// a *harvest.FetchError. Cancellation ends the loop immediately and is
// returned unwrapped so callers can tell it apart from exhaustion.
func (f *Retrying) Fetch(ctx context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fetcher.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("harvest.locator", req.Locator))

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.Locator, err)
		}
		resp, err := f.attempt(ctx, req)
		if err == nil {
			resp.Attempts = attempt
			span.SetAttributes(attribute.Int("harvest.attempts", attempt))
			metrics.ObserveFetchAttempt(req.Locator, "ok", len(resp.Body))
			return resp, nil
		}
		if harvest.IsCanceled(err) && ctx.Err() != nil {
			span.SetStatus(codes.Error, "canceled")
			return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.Locator, ctx.Err())
		}
		metrics.ObserveFetchAttempt(req.Locator, "error", 0)
		lastErr = err

		// ctx is still live here, so a deadline error came from the per-attempt timeout.
		if attempt >= f.policy.MaxAttempts() {
			fetchErr := &harvest.FetchError{Locator: req.Locator, Attempts: attempt, Err: lastErr}
			span.RecordError(fetchErr)
			span.SetStatus(codes.Error, "retries exhausted")
			return harvest.FetchResponse{}, fetchErr
		}
		f.logger.Debug("fetch attempt failed, retrying",
			zap.String("url", req.Locator),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.policy.MaxAttempts()),
			zap.Duration("delay", f.policy.Delay),
			zap.Error(err),
		)
		if err := f.policy.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.Locator, err)
		}
	}
}

func (f *Retrying) attempt(ctx context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, req.Locator); err != nil {
			return harvest.FetchResponse{}, fmt.Errorf("pace: %w", err)
		}
	}
	resp, err := f.transport.Do(ctx, req)
	if err != nil {
		return harvest.FetchResponse{}, err
	}
	if resp.StatusCode >= 300 {
		return harvest.FetchResponse{}, &harvest.StatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// IsExhausted reports whether err is a retry exhaustion rather than a cancellation.
func IsExhausted(err error) bool {
	var fetchErr *harvest.FetchError
	return errors.As(err, &fetchErr)
}
