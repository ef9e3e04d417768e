package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

// IsTransient reports whether err is a connectivity or credential failure
// that the next provider in a chain may not share. Cancellation by the
// caller is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driven.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var te driven.TransientError
	if errors.As(err, &te) {
		return te.Transient()
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// EmbeddingChain tries embedding providers in order. A transient failure
// moves on to the next provider, anything else stops the chain.
// The first provider's dimension is the chain's dimension.
type EmbeddingChain struct {
	providers   []driven.EmbeddingService
	isTransient func(error) bool
	dimension   int
}

// NewEmbeddingChain creates a chain over providers in fallback order.
func NewEmbeddingChain(providers []driven.EmbeddingService) (*EmbeddingChain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no embedding providers configured", domain.ErrConfiguration)
	}
	return &EmbeddingChain{
		providers:   providers,
		isTransient: IsTransient,
		dimension:   providers[0].Dimensions(),
	}, nil
}

// Dimensions returns the vector length every result must have.
func (c *EmbeddingChain) Dimensions() int {
	return c.dimension
}

// ModelName returns the primary provider's model.
func (c *EmbeddingChain) ModelName() string {
	return c.providers[0].ModelName()
}

// Embed returns the vector for text from the first provider that succeeds.
func (c *EmbeddingChain) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.run(ctx, func(p driven.EmbeddingService) ([][]float32, error) {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors for texts from the first provider that
// embeds the whole batch.
func (c *EmbeddingChain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.run(ctx, func(p driven.EmbeddingService) ([][]float32, error) {
		vecs, err := p.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%s returned %d vectors for %d texts", p.ModelName(), len(vecs), len(texts))
		}
		return vecs, nil
	})
}

func (c *EmbeddingChain) run(
	ctx context.Context,
	call func(p driven.EmbeddingService) ([][]float32, error),
) ([][]float32, error) {
	var errs []error
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vecs, err := call(p)
		if err == nil {
			for _, v := range vecs {
				if len(v) != c.dimension {
					return nil, fmt.Errorf("%w: %w: %s returned %d dimensions, collection expects %d",
						domain.ErrEmbeddingFailure, domain.ErrDimensionMismatch, p.ModelName(), len(v), c.dimension)
				}
			}
			if i > 0 {
				logger.Debug("embedding served by fallback provider %s", p.ModelName())
			}
			return vecs, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.ModelName(), err))
		if !c.isTransient(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, errors.Join(errs...))
		}
		logger.Warn("embedding provider %s failed, trying next: %v", p.ModelName(), err)
	}
	return nil, fmt.Errorf("%w: all providers exhausted: %w", domain.ErrEmbeddingFailure, errors.Join(errs...))
}

// EmbedChunks embeds texts in batches. A batch that fails is retried text
// by text, and a text that still fails gets a zero vector so the build
// keeps going. It returns the vectors and the number of zero vectors.
// Only cancellation of ctx aborts.
func (c *EmbeddingChain) EmbedChunks(ctx context.Context, texts []string, batchSize int) ([][]float32, int, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	degraded := 0
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := c.EmbedBatch(ctx, batch)
		if err == nil {
			out = append(out, vecs...)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, degraded, ctxErr
		}
		logger.Debug("batch %d-%d failed, embedding individually: %v", start, end, err)

		for i, text := range batch {
			vec, err := c.Embed(ctx, text)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, degraded, ctxErr
				}
				logger.Warn("chunk %d: embedding failed, storing zero vector: %v", start+i, err)
				vec = make([]float32, c.dimension)
				degraded++
			}
			out = append(out, vec)
		}
	}

	if degraded > 0 {
		telemetry.Default().DegradedChunks.Add(ctx, int64(degraded),
			metric.WithAttributes(attribute.String("model", c.ModelName())))
	}
	return out, degraded, nil
}
