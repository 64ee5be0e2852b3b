// Package orchestration routes a query through the specialists and
// synthesizes the final answer.
//
// Types used by the router, the reporter and the pipeline.
package orchestration

import (
	"io"
	"log/slog"

	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/model"
	"github.com/richinex/musicbi/tools"
)

// RouteState is one state of a routed query.
type RouteState string

const (
	StateReceived          RouteState = "received"
	StateDeciding          RouteState = "deciding"
	StateToolCallSQL       RouteState = "tool_call_sql"
	StateToolCallKnowledge RouteState = "tool_call_knowledge"
	StateToolCallBoth      RouteState = "tool_call_both"
	StateDirectAnswer      RouteState = "direct_answer"
	StateAggregated        RouteState = "aggregated"
)

// RouteResult is what the router observed while answering one query.
type RouteResult struct {
	// Decision is the branch taken: one of the tool_call states or direct_answer.
	Decision    RouteState         `json:"decision"`
	Transitions []RouteState       `json:"transitions"`
	Output      string             `json:"output"`
	Invocations []model.Invocation `json:"invocations"`
	TokenStats  TokenStats         `json:"token_stats"`
}

// TokenStats tracks token usage across an orchestration.
type TokenStats struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
	LLMCalls         int    `json:"llm_calls"`
}

// AddUsage adds token usage from one or more LLM calls.
func (ts *TokenStats) AddUsage(usage *llm.TokenUsage, calls int) {
	ts.LLMCalls += calls
	if usage == nil {
		return
	}
	ts.PromptTokens += usage.PromptTokens
	ts.CompletionTokens += usage.CompletionTokens
	ts.TotalTokens += usage.TotalTokens
}

// Add merges other into ts.
func (ts *TokenStats) Add(other TokenStats) {
	ts.PromptTokens += other.PromptTokens
	ts.CompletionTokens += other.CompletionTokens
	ts.TotalTokens += other.TotalTokens
	ts.LLMCalls += other.LLMCalls
}

// Options configures the agents built by this package.
type Options struct {
	MaxIterations int
	Quiet         bool
	ParallelTools bool
	Output        io.Writer
	Logger        *slog.Logger
	ToolConfig    tools.ToolConfig
}

func (o Options) newAgent(cfg agent.Config, provider llm.Provider) (*agent.Agent, error) {
	cfg.MaxIterations = o.MaxIterations
	cfg.Quiet = o.Quiet
	cfg.ParallelTools = o.ParallelTools
	a, err := agent.New(cfg, provider)
	if err != nil {
		return nil, err
	}
	return a.WithToolConfig(o.ToolConfig).WithOutput(o.Output).WithLogger(o.Logger), nil
}
