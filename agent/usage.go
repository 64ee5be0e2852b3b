package agent

import (
	"context"
	"sync"

	"github.com/richinex/musicbi/llm"
)

// UsageTally sums model usage over every agent run sharing a context, so a
// router's total includes the specialists it called.
type UsageTally struct {
	mu    sync.Mutex
	usage llm.TokenUsage
	calls int
}

type tallyKey struct{}

// WithUsageTally returns a context whose agent runs report into a new tally.
func WithUsageTally(ctx context.Context) (context.Context, *UsageTally) {
	t := &UsageTally{}
	return context.WithValue(ctx, tallyKey{}, t), t
}

func tallyFrom(ctx context.Context) *UsageTally {
	t, _ := ctx.Value(tallyKey{}).(*UsageTally)
	return t
}

func (t *UsageTally) add(m Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Add(&m.TokenUsage)
	t.calls += m.LLMCalls
}

// Totals returns the usage and model call count recorded so far.
func (t *UsageTally) Totals() (llm.TokenUsage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage, t.calls
}
