package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

// Ensure guarded services implement the interfaces.
var (
	_ driven.EmbeddingService = (*GuardedEmbedding)(nil)
	_ driven.ChatProvider     = (*GuardedChat)(nil)
)

// GuardConfig tunes the rate limiter and circuit breaker around a provider.
type GuardConfig struct {
	// RequestsPerSecond caps outbound calls. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter bucket size (default: 5).
	Burst int

	// MinRequests is the number of calls observed before the breaker may trip (default: 3).
	MinRequests uint32

	// FailureRatio trips the breaker once reached (default: 0.6).
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open (default: 30s).
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns limits suited to hosted providers.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond: 10,
		Burst:             5,
		MinRequests:       3,
		FailureRatio:      0.6,
		OpenTimeout:       30 * time.Second,
	}
}

// BreakerOpenError is returned while a provider's breaker rejects calls.
// It is transient so a fallback chain moves on to the next provider.
type BreakerOpenError struct {
	Provider string
	Err      error
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker: %v", e.Provider, e.Err)
}

func (e *BreakerOpenError) Unwrap() error { return e.Err }

// Transient always returns true.
func (e *BreakerOpenError) Transient() bool { return true }

// guard applies rate limiting, circuit breaking and telemetry to calls
// against a single provider.
type guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics
}

func newGuard(name string, cfg GuardConfig) *guard {
	def := DefaultGuardConfig()
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	m := telemetry.Default()
	g := &guard{name: name, metrics: m}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// Cancellation is the caller's doing, not the provider's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
			m.BreakerStateChanges.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("provider", name),
				attribute.String("state", to.String()),
			))
		},
	})
	return g
}

// State reports the breaker state.
func (g *guard) State() gobreaker.State {
	return g.breaker.State()
}

// do runs fn under the guard and records a span plus call metrics.
func (g *guard) do(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "provider."+op)
	defer span.End()
	span.SetAttributes(attribute.String("provider", g.name))

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			span.SetAttributes(attribute.Bool("provider.rate_limited", true))
			return nil, err
		}
	}

	start := time.Now()
	res, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
			span.SetAttributes(attribute.Bool("provider.circuit_open", true))
			err = &BreakerOpenError{Provider: g.name, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("provider", g.name),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	g.metrics.ProviderCalls.Add(ctx, 1, attrs)
	g.metrics.ProviderDuration.Record(ctx, elapsed, attrs)

	return res, err
}

// GuardedEmbedding wraps an EmbeddingService with a guard.
type GuardedEmbedding struct {
	inner driven.EmbeddingService
	guard *guard
}

// GuardEmbedding wraps svc. The name labels metrics and the breaker.
func GuardEmbedding(name string, svc driven.EmbeddingService, cfg GuardConfig) *GuardedEmbedding {
	return &GuardedEmbedding{inner: svc, guard: newGuard(name, cfg)}
}

// Embed generates a vector embedding for the given text.
func (g *GuardedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.guard.do(ctx, "embed", func(ctx context.Context) (any, error) {
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (g *GuardedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := g.guard.do(ctx, "embed_batch", func(ctx context.Context) (any, error) {
		return g.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float32), nil
}

// Dimensions returns the wrapped service's dimension.
func (g *GuardedEmbedding) Dimensions() int { return g.inner.Dimensions() }

// ModelName returns the wrapped service's model.
func (g *GuardedEmbedding) ModelName() string { return g.inner.ModelName() }

// Ping bypasses the breaker so health checks never trip it.
func (g *GuardedEmbedding) Ping(ctx context.Context) error { return g.inner.Ping(ctx) }

// Close releases the wrapped service.
func (g *GuardedEmbedding) Close() error { return g.inner.Close() }

// Unwrap returns the wrapped service.
func (g *GuardedEmbedding) Unwrap() driven.EmbeddingService { return g.inner }

// GuardedChat wraps a ChatProvider with a guard.
type GuardedChat struct {
	inner driven.ChatProvider
	guard *guard
}

// GuardChat wraps svc. The name labels metrics and the breaker.
func GuardChat(name string, svc driven.ChatProvider, cfg GuardConfig) *GuardedChat {
	return &GuardedChat{inner: svc, guard: newGuard(name, cfg)}
}

// Complete sends the conversation through the guard.
func (g *GuardedChat) Complete(
	ctx context.Context,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.ChatOptions,
) (string, error) {
	res, err := g.guard.do(ctx, "chat", func(ctx context.Context) (any, error) {
		return g.inner.Complete(ctx, systemPrompt, messages, opts)
	})
	if err != nil {
		var open *BreakerOpenError
		if errors.As(err, &open) {
			return "", fmt.Errorf("%w: %w", domain.ErrChatProvider, err)
		}
		return "", err
	}
	return res.(string), nil
}

// ModelName returns the wrapped provider's model.
func (g *GuardedChat) ModelName() string { return g.inner.ModelName() }

// Ping bypasses the breaker.
func (g *GuardedChat) Ping(ctx context.Context) error { return g.inner.Ping(ctx) }

// Close releases the wrapped provider.
func (g *GuardedChat) Close() error { return g.inner.Close() }
