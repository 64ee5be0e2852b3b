package orchestration

import (
	"context"
	"fmt"

	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/model"
	"github.com/richinex/musicbi/tools"
)

// DefaultRouterPrompt tells the router when to delegate.
const DefaultRouterPrompt = `You are the front desk of a music store business intelligence assistant.

Decide how to answer each question:
- Answer directly when it is a simple general question that needs no company data.
- Call sql_assistant for anything that needs figures from the databases (sales, customers, tracks, artists, invoices).
- Call knowledge_assistant for questions about documentation, definitions, business rules or how the system is built.
- Call both when the question needs data and documentation.

Pass the user's question to each assistant as its query, rephrased only if that makes it clearer.
When the assistants have answered, reply with everything relevant they found; do not drop figures or SQL.`

// Router decides, through native tool calling, which specialists a query needs.
type Router struct {
	agent *agent.Agent
}

// NewRouter builds the router over the given specialist tools, typically
// sql_assistant and knowledge_assistant. An empty systemPrompt uses
// DefaultRouterPrompt.
func NewRouter(provider llm.Provider, specialists []tools.Tool, systemPrompt string, opts Options) (*Router, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultRouterPrompt
	}
	cfg := agent.NewBuilder("router").
		Description("Routes queries to the SQL and knowledge specialists").
		SystemPrompt(systemPrompt).
		Tools(specialists...).
		Build()
	a, err := opts.newAgent(cfg, provider)
	if err != nil {
		return nil, err
	}
	return &Router{agent: a}, nil
}

// Tools returns the router's specialist tools.
func (r *Router) Tools() *tools.Registry {
	return r.agent.Tools()
}

// Route answers query with whatever specialists the model calls and
// reports the branch taken. TokenStats covers the router's model calls and
// those of every specialist it ran.
func (r *Router) Route(ctx context.Context, query string) (RouteResult, error) {
	ctx, tally := agent.WithUsageTally(ctx)
	resp, err := r.agent.Run(ctx, query)
	result := RouteResult{
		Decision:    Classify(resp.Invocations),
		Output:      resp.Result,
		Invocations: resp.Invocations,
	}
	usage, calls := tally.Totals()
	result.TokenStats.AddUsage(&usage, calls)
	if err != nil {
		result.Transitions = []RouteState{StateReceived, StateDeciding}
		return result, fmt.Errorf("router: %w", err)
	}
	result.Transitions = []RouteState{StateReceived, StateDeciding, result.Decision, StateAggregated}
	return result, nil
}

// Classify maps the specialist calls of one run to the branch they imply.
// Calls to other tools do not affect the branch.
func Classify(invocations []model.Invocation) RouteState {
	var sql, knowledge bool
	for _, inv := range invocations {
		switch inv.Tool {
		case tools.SQLAssistantName:
			sql = true
		case tools.KnowledgeAssistantName:
			knowledge = true
		}
	}
	switch {
	case sql && knowledge:
		return StateToolCallBoth
	case sql:
		return StateToolCallSQL
	case knowledge:
		return StateToolCallKnowledge
	default:
		return StateDirectAnswer
	}
}
