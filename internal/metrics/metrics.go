// Package metrics holds the Prometheus collectors for tools, agents and retrieval.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_tool_calls_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musicbi_tool_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	agentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_agent_runs_total",
			Help: "Total number of agent runs",
		},
		[]string{"agent", "outcome"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_llm_tokens_total",
			Help: "Total number of LLM tokens",
		},
		[]string{"provider", "model", "type"},
	)

	ragSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_rag_searches_total",
			Help: "Total number of knowledge retrievals",
		},
		[]string{"status"},
	)

	ragSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "musicbi_rag_search_duration_seconds",
			Help:    "Knowledge retrieval duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	indexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_index_builds_total",
			Help: "Total number of knowledge index rebuilds",
		},
		[]string{"status"},
	)

	sqlRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbi_sql_rejected_total",
			Help: "Total number of rejected SQL statements",
		},
		[]string{"reason"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordToolCall records one tool execution.
func RecordToolCall(tool string, success bool, elapsed time.Duration) {
	s := "ok"
	if !success {
		s = "error"
	}
	toolCallsTotal.WithLabelValues(tool, s).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordAgentRun records the outcome of one agent run ("success", "failure", "timeout").
func RecordAgentRun(agent, outcome string) {
	agentRunsTotal.WithLabelValues(agent, outcome).Inc()
}

// RecordTokens records token usage for a model call.
func RecordTokens(provider, model string, prompt, completion uint32) {
	llmTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	llmTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

// RecordRetrieval records one knowledge retrieval.
func RecordRetrieval(err error, elapsed time.Duration) {
	ragSearchesTotal.WithLabelValues(status(err)).Inc()
	ragSearchDuration.Observe(elapsed.Seconds())
}

// RecordIndexBuild records one index rebuild.
func RecordIndexBuild(err error) {
	indexBuildsTotal.WithLabelValues(status(err)).Inc()
}

// RecordSQLRejected records a statement refused by the SELECT guard.
func RecordSQLRejected(reason string) {
	sqlRejectedTotal.WithLabelValues(reason).Inc()
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
