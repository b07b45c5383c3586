package completion

import (
	"context"
	"time"

	"github.com/salescope/salescope/internal/observability"
)

// InstrumentedClient records per-call latency and outcome metrics, labeled by
// which pipeline stage the completion serves.
type InstrumentedClient struct {
	kind string
	next Client
}

func NewInstrumented(kind string, next Client) *InstrumentedClient {
	return &InstrumentedClient{kind: kind, next: next}
}

func (c *InstrumentedClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, prompt)
	observability.ObserveCompletion(c.kind, time.Since(start), err)
	return out, err
}
