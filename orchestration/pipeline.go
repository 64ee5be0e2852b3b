package orchestration

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/musicbi/internal/apperror"
)

// Result is the outcome of one pipeline run.
type Result struct {
	RunID           string      `json:"run_id"`
	Query           string      `json:"query"`
	Answer          string      `json:"answer"`
	Route           RouteResult `json:"route"`
	TokenStats      TokenStats  `json:"token_stats"`
	ExecutionTimeMs uint64      `json:"execution_time_ms"`
}

// Pipeline runs the router and then the reporter, sequentially.
type Pipeline struct {
	router   *Router
	reporter *Reporter
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. A nil logger discards logs.
func NewPipeline(router *Router, reporter *Reporter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{router: router, reporter: reporter, logger: logger}
}

// Router returns the pipeline's router.
func (p *Pipeline) Router() *Router {
	return p.router
}

// Run answers query. A blank query is a VALIDATION error; a router or
// reporter failure aborts the run and no partial answer is returned.
func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Query: query}
	if strings.TrimSpace(query) == "" {
		return res, apperror.Validation("query is empty")
	}
	log := p.logger.With("run_id", res.RunID)
	log.Info("query received")

	route, err := p.router.Route(ctx, query)
	res.Route = route
	res.TokenStats.Add(route.TokenStats)
	if err != nil {
		log.Error("routing failed", "error", err)
		return res, err
	}
	log.Info("routed", "decision", route.Decision, "tool_calls", len(route.Invocations))

	answer, usage, err := p.reporter.Synthesize(ctx, query, route.Output)
	res.TokenStats.AddUsage(usage, 1)
	if err != nil {
		log.Error("report failed", "error", err)
		return res, err
	}
	res.Answer = answer
	res.ExecutionTimeMs = uint64(time.Since(start).Milliseconds())
	log.Info("answer ready", "duration_ms", res.ExecutionTimeMs, "llm_calls", res.TokenStats.LLMCalls)
	return res, nil
}
