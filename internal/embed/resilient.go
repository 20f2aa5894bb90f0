package embed

import (
	"context"
	"time"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// DefaultBatchTimeout is the per-batch embedder timeout spec.md §5 names.
const DefaultBatchTimeout = 30 * time.Second

// ResilientEmbedder adds the retry/circuit-breaker policy spec.md §5
// prescribes for embedder calls (3 attempts, exponential backoff, base
// 500ms, factor 2) on top of any Embedder, and enforces a per-batch
// timeout so a hung provider call surfaces as a retryable error instead
// of blocking forever.
type ResilientEmbedder struct {
	inner   Embedder
	breaker *cerrors.CircuitBreaker
	retry   cerrors.RetryConfig
	timeout time.Duration
}

// NewResilientEmbedder wraps inner with the default retry policy and a
// circuit breaker, tripping after repeated provider failures so later
// calls fail fast instead of queueing behind a dead collaborator.
func NewResilientEmbedder(inner Embedder) *ResilientEmbedder {
	return &ResilientEmbedder{
		inner:   inner,
		breaker: cerrors.NewCircuitBreaker(),
		retry: cerrors.RetryConfig{
			MaxRetries:   2, // first attempt plus 2 retries = 3 attempts
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		timeout: DefaultBatchTimeout,
	}
}

func (r *ResilientEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *ResilientEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !r.breaker.Allow() {
		return nil, cerrors.New(cerrors.ErrCodeNetworkUnavailable, "embedder circuit open")
	}
	vecs, err := cerrors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		v, e := r.inner.EmbedBatch(cctx, texts)
		if e != nil {
			if cctx.Err() != nil {
				return nil, cerrors.Wrap(cctx.Err(), cerrors.ErrCodeNetworkTimeout, "embed batch timed out")
			}
			return nil, cerrors.Wrap(e, cerrors.ErrCodeEmbeddingFailed, "embed batch")
		}
		return v, nil
	})
	if err != nil {
		r.breaker.RecordFailure()
		return nil, err
	}
	r.breaker.RecordSuccess()
	return vecs, nil
}
