package orchestration

import (
	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/tools"
)

const sqlSystemPrompt = `You are a SQL analyst with read-only access to the registered databases.

Work in this order:
1. Find the right database with list_databases unless the identifier is already known.
2. Inspect the structure with get_schema_details (or get_all_database_details) before writing SQL.
3. Write one SELECT statement at a time and run it with execute_select_statement.
4. If a statement is rejected or fails, read the error, fix the statement and try again.

Only SELECT statements are allowed. Never guess column names. In your answer,
show the SQL you ran and summarize the result; include a markdown table
when the result has more than one row.`

const metricsSystemPrompt = `You are a business metrics analyst for a digital music store.
Explain how metrics are defined, which data they need and how to read them.
Be precise and say when a figure would need to be computed from the database.`

// NewSQLSpecialist builds the agent behind sql_assistant.
func NewSQLSpecialist(provider llm.Provider, db tools.SQLAccess, opts Options) (*agent.Agent, error) {
	cfg := agent.NewBuilder("sql").
		Description("Writes and runs read-only SQL against the registered databases").
		SystemPrompt(sqlSystemPrompt).
		Tools(tools.SQLTools(db)...).
		Build()
	return opts.newAgent(cfg, provider)
}

// NewKnowledgeSpecialist builds the agent behind knowledge_assistant.
// It runs without a system prompt.
func NewKnowledgeSpecialist(provider llm.Provider, r tools.KnowledgeRetriever, topK int, opts Options) (*agent.Agent, error) {
	cfg := agent.NewBuilder("knowledge").
		Description("Answers from the documentation knowledge base").
		Tools(tools.NewRetrieveKnowledgeTool(r, topK)).
		Build()
	return opts.newAgent(cfg, provider)
}

// NewMetricsSpecialist builds the tool-less agent behind metrics_assistant.
func NewMetricsSpecialist(provider llm.Provider, opts Options) (*agent.Agent, error) {
	cfg := agent.NewBuilder("metrics").
		Description("Explains business metrics").
		SystemPrompt(metricsSystemPrompt).
		Build()
	return opts.newAgent(cfg, provider)
}
