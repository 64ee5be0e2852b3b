package orchestration

import (
	"context"
	"fmt"

	"github.com/richinex/musicbi/internal/metrics"
	"github.com/richinex/musicbi/llm"
)

// ReportPrompt is the single user message sent to the report model.
func ReportPrompt(query, intermediate string) string {
	return fmt.Sprintf(`The user asked: "%s"

Intermediate analysis and results:
%s

Your task: Create a polished, comprehensive final answer that addresses all aspects of the user's question. Use proper formatting, structure the information clearly, and ensure nothing important is lost.`, query, intermediate)
}

// Reporter turns the router's output into the final answer with one
// tool-less model call.
type Reporter struct {
	client *llm.Client
}

// NewReporter creates a reporter.
func NewReporter(provider llm.Provider) *Reporter {
	return &Reporter{client: llm.NewClient(provider)}
}

// Synthesize produces the final answer. usage may be nil.
func (r *Reporter) Synthesize(ctx context.Context, query, intermediate string) (answer string, usage *llm.TokenUsage, err error) {
	resp, err := r.client.Chat(ctx, []llm.ChatMessage{llm.UserMessage(ReportPrompt(query, intermediate))})
	if err != nil {
		metrics.RecordAgentRun("report", "failure")
		return "", nil, fmt.Errorf("report: %w", err)
	}
	metrics.RecordAgentRun("report", "success")
	return resp.Content, resp.Usage, nil
}
