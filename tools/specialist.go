// Specialist tools: a whole agent exposed to another agent as one tool.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Prompt templates wrapping the router's query for each specialist.
const (
	SQLTaskTemplate       = "Run SQL if needed: '%s'. Use your available tools to write SQL (SELECT ONLY), run SQL, and interprete SQL results properly."
	KnowledgeTaskTemplate = "Retrieve knowledge if needed: '%s'. Use your available tools to retrieve relavant information from knowledge base."
	MetricsTaskTemplate   = "Analyze the metrics question if needed: '%s'. Explain how the figures are defined and computed."
)

// Specialist tool names.
const (
	SQLAssistantName       = "sql_assistant"
	KnowledgeAssistantName = "knowledge_assistant"
	MetricsAssistantName   = "metrics_assistant"
)

// Specialist answers one prompt. agent.Agent implements it.
type Specialist interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// AgentTool exposes a Specialist as a tool taking a single query.
type AgentTool struct {
	name        string
	description string
	template    string
	specialist  Specialist
}

// NewAgentTool wraps specialist. template must hold one %s for the query;
// an empty template passes the query unchanged.
func NewAgentTool(name, description, template string, specialist Specialist) *AgentTool {
	return &AgentTool{
		name:        name,
		description: description,
		template:    template,
		specialist:  specialist,
	}
}

// NewSQLAssistant wraps the SQL specialist.
func NewSQLAssistant(specialist Specialist) *AgentTool {
	return NewAgentTool(SQLAssistantName,
		`Answer questions that need data from the business databases: sales,
customers, invoices, tracks, albums, artists, employees and any other
figure that can be computed with SQL. Pass the user's question as the
query; the assistant inspects the schema, writes and runs read-only SQL,
and explains the result.`,
		SQLTaskTemplate, specialist)
}

// NewKnowledgeAssistant wraps the knowledge specialist.
func NewKnowledgeAssistant(specialist Specialist) *AgentTool {
	return NewAgentTool(KnowledgeAssistantName,
		`Answer questions from the documentation knowledge base: definitions,
business rules, how the system and its code are organized. Pass the
user's question as the query; the assistant searches the knowledge base
and summarizes what it finds.`,
		KnowledgeTaskTemplate, specialist)
}

// NewMetricsAssistant wraps the optional metrics specialist.
func NewMetricsAssistant(specialist Specialist) *AgentTool {
	return NewAgentTool(MetricsAssistantName,
		`Explain business metrics: how a KPI is defined, which inputs it needs and
how to interpret it. Pass the user's question as the query.`,
		MetricsTaskTemplate, specialist)
}

type agentToolArgs struct {
	Query string `json:"query"`
}

func (t *AgentTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The question for this assistant", Required: true},
		},
	}
}

func (t *AgentTool) Validate(args json.RawMessage) error {
	var a agentToolArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	return requireString("query", a.Query)
}

// Prompt returns the text sent to the specialist for query.
func (t *AgentTool) Prompt(query string) string {
	if t.template == "" {
		return query
	}
	return fmt.Sprintf(t.template, query)
}

// Execute runs the specialist. Its failure becomes a failed result so the
// calling agent sees "ERROR: ..." and can carry on.
func (t *AgentTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a agentToolArgs
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}
	answer, err := t.specialist.Ask(ctx, t.Prompt(a.Query))
	if err != nil {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		return FailureResult(fmt.Errorf("%s failed: %w", t.name, err)), nil
	}
	return SuccessResult(answer), nil
}
