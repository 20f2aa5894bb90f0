// Package embed wraps an external text->vector function behind the
// Embedder contract (spec.md §4.2): single and batched embedding with
// backpressure and fallback. The embedding model itself is an explicit
// out-of-scope collaborator (spec.md §1); this package owns only the
// wrapping policy around it.
package embed

import (
	"context"

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// MaxBatchPerRequest is the per-request cap spec.md §4.2 requires batches
// never exceed, regardless of the external provider's own limit.
const MaxBatchPerRequest = 100

// Embedder is the black-box text->vector collaborator ctxforge consumes.
// Implementations are responsible for never exceeding their own
// per-request batch cap; Client (below) splits larger requests for them.
type Embedder interface {
	// EmbedOne returns the embedding for a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns embeddings in the same order as texts. A batch
	// either fully succeeds or fully fails: no partial results.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the fixed vector dimension D this embedder produces.
	Dimensions() int
}

// Func adapts a plain batch function into an Embedder, the shape most
// black-box provider SDKs already expose.
type Func struct {
	BatchFn func(ctx context.Context, texts []string) ([][]float32, error)
	Dim     int
}

func (f Func) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f Func) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f.BatchFn(ctx, texts)
}

func (f Func) Dimensions() int { return f.Dim }

// Client wraps a primary Embedder with an optional fallback, applying the
// per-request batch cap and the failure policy spec.md §4.2 names: on
// provider failure either surface a typed EmbeddingFailed error or fall
// back to a configured alternative, caller-selectable via WithFallback.
type Client struct {
	primary  Embedder
	fallback Embedder
}

// Option configures a Client.
type Option func(*Client)

// WithFallback installs an alternative Embedder consulted whenever the
// primary returns an error.
func WithFallback(fallback Embedder) Option {
	return func(c *Client) { c.fallback = fallback }
}

// NewClient builds a Client around primary with the given options.
func NewClient(primary Embedder, opts ...Option) *Client {
	c := &Client{primary: primary}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dimensions() int { return c.primary.Dimensions() }

// EmbedOne embeds a single text, using the fallback if the primary fails.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into MaxBatchPerRequest-sized sub-batches and
// embeds each in turn, concatenating results in order. A sub-batch
// failure on the primary falls back to the alternative embedder if one is
// configured; otherwise it surfaces EmbeddingFailed for the whole call,
// since spec.md §4.2 forbids partial results.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchPerRequest {
		end := start + MaxBatchPerRequest
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedSubBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.primary.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if c.fallback != nil {
		fvecs, ferr := c.fallback.EmbedBatch(ctx, texts)
		if ferr == nil {
			return fvecs, nil
		}
		return nil, cerrors.Wrap(ferr, cerrors.ErrCodeEmbeddingFailed, "embed batch (fallback also failed)")
	}
	return nil, cerrors.Wrap(err, cerrors.ErrCodeEmbeddingFailed, "embed batch")
}
