// Tool-calling loop.
//
// All agent execution goes through this module: the model is offered the
// agent's tools natively, every requested call is executed and answered
// with a tool message, and the first turn without tool calls is the answer.
//
// Information Hiding:
// - Loop internals hidden
// - LLM communication hidden
// - Tool execution coordination hidden

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/musicbi/internal/metrics"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/model"
	"github.com/richinex/musicbi/tools"
)

// Agent runs the tool-calling loop for one configuration. It holds no
// per-run state, so one Agent serves concurrent runs.
type Agent struct {
	config       Config
	llmClient    *llm.Client
	toolRegistry *tools.Registry
	toolConfig   tools.ToolConfig
	toolExecutor *tools.Executor
	definitions  []llm.ToolDefinition
	out          io.Writer
	logger       *slog.Logger
}

// New creates an agent. Duplicate tool names are a CONFIG error.
func New(config Config, provider llm.Provider) (*Agent, error) {
	registry, err := tools.NewRegistryWith(config.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", config.Name, err)
	}

	return &Agent{
		config:       config,
		llmClient:    llm.NewClient(provider),
		toolRegistry: registry,
		toolConfig:   tools.DefaultToolConfig(),
		toolExecutor: tools.NewDefaultExecutor(),
		definitions:  registry.Definitions(),
		out:          os.Stdout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.toolConfig = config
	a.toolExecutor = tools.NewExecutor(config, tools.WithExecutorLogger(a.logger))
	return a
}

// WithOutput sets where tool-call chatter goes when not quiet.
func (a *Agent) WithOutput(w io.Writer) *Agent {
	if w == nil {
		w = io.Discard
	}
	a.out = w
	return a
}

// WithLogger sets the structured logger.
func (a *Agent) WithLogger(l *slog.Logger) *Agent {
	if l != nil {
		a.logger = l.With("agent", a.config.Name)
		a.toolExecutor = tools.NewExecutor(a.toolConfig, tools.WithExecutorLogger(a.logger))
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *tools.Registry {
	return a.toolRegistry
}

// Ask runs task and returns only the final text.
func (a *Agent) Ask(ctx context.Context, task string) (string, error) {
	resp, err := a.Run(ctx, task)
	if err != nil {
		return "", err
	}
	return resp.Result, nil
}

// Run executes task. The Response is always populated with the invocations
// made so far; err is non-nil unless the model produced a final answer.
// Exceeding MaxIterations returns an error wrapping ErrMaxIterations.
func (a *Agent) Run(ctx context.Context, task string) (Response, error) {
	startTime := time.Now()
	resp := Response{Metadata: Metadata{AgentName: a.config.Name}}

	finish := func(t ResponseType, err error) (Response, error) {
		resp.Type = t
		if err != nil {
			resp.Error = err.Error()
		}
		resp.Metadata.ExecutionTimeMs = uint64(time.Since(startTime).Milliseconds())
		if tally := tallyFrom(ctx); tally != nil {
			tally.add(resp.Metadata)
		}
		metrics.RecordAgentRun(a.config.Name, t.String())
		a.logger.Info("agent run finished",
			"outcome", t.String(),
			"tool_calls", len(resp.Invocations),
			"llm_calls", resp.Metadata.LLMCalls,
			"duration_ms", resp.Metadata.ExecutionTimeMs)
		return resp, err
	}

	var conversation []llm.ChatMessage
	if a.config.SystemPrompt != "" {
		conversation = append(conversation, llm.SystemMessage(a.config.SystemPrompt))
	}
	conversation = append(conversation, llm.UserMessage(task))

	maxIterations := a.config.maxIterations()
	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return finish(ResponseFailure, fmt.Errorf("execution cancelled: %w", err))
		}

		response, err := a.llmClient.ChatWithTools(ctx, conversation, a.definitions)
		resp.Metadata.LLMCalls++
		if err != nil {
			return finish(ResponseFailure, fmt.Errorf("LLM call failed: %w", err))
		}
		resp.Metadata.TokenUsage.Add(response.Usage)

		if !response.HasToolCalls() {
			resp.Result = response.Content
			return finish(ResponseSuccess, nil)
		}

		a.announce(iteration, response.ToolCalls)
		conversation = append(conversation, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		invocations, err := a.executeTools(ctx, response.ToolCalls)
		if err != nil {
			return finish(ResponseFailure, fmt.Errorf("execution cancelled: %w", err))
		}
		for i, call := range response.ToolCalls {
			inv := invocations[i]
			resp.Invocations = append(resp.Invocations, inv)
			text := inv.Output
			if !inv.Succeeded() {
				text = "ERROR: " + inv.Error
			}
			conversation = append(conversation, llm.ToolResultMessage(call, text))
		}
	}

	return finish(ResponseTimeout, fmt.Errorf("%w (%d)", ErrMaxIterations, maxIterations))
}

// executeTools runs the calls of one model turn. Results are indexed by
// request position whether or not they run concurrently. Only context
// cancellation is returned as an error.
func (a *Agent) executeTools(ctx context.Context, calls []llm.ToolCall) ([]model.Invocation, error) {
	invocations := make([]model.Invocation, len(calls))
	if !a.config.ParallelTools || len(calls) < 2 {
		for i, call := range calls {
			inv, err := a.executeTool(ctx, call)
			if err != nil {
				return nil, err
			}
			invocations[i] = inv
		}
		return invocations, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			inv, err := a.executeTool(gctx, call)
			if err != nil {
				return err
			}
			invocations[i] = inv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return invocations, nil
}

// executeTool runs one call and records it. Tool failures are recorded in
// the invocation; only cancellation is returned.
func (a *Agent) executeTool(ctx context.Context, call llm.ToolCall) (model.Invocation, error) {
	inv := model.Invocation{Tool: call.Name, Arguments: call.Arguments}
	if len(inv.Arguments) == 0 {
		inv.Arguments = json.RawMessage("{}")
	}
	startTime := time.Now()

	tool, exists := a.toolRegistry.Get(call.Name)
	if !exists {
		inv.Error = fmt.Sprintf("tool '%s' not found", call.Name)
		a.logger.Warn("unknown tool requested", "tool", call.Name)
		return inv, nil
	}

	result, err := a.toolExecutor.Execute(ctx, tool, inv.Arguments)
	inv.Duration = time.Since(startTime)
	if err != nil {
		// only the run's own cancellation stops the loop
		if ctx.Err() != nil {
			return inv, err
		}
		inv.Error = err.Error()
	} else if !result.Success() {
		inv.Error = result.Error.Error()
	} else {
		inv.Output = result.Text()
	}

	a.logger.Debug("tool executed",
		"tool", call.Name,
		"success", inv.Succeeded(),
		"duration_ms", inv.Duration.Milliseconds())
	return inv, nil
}

func (a *Agent) announce(iteration int, calls []llm.ToolCall) {
	if a.config.Quiet {
		return
	}
	for _, tc := range calls {
		args := string(tc.Arguments)
		if len(args) > 100 {
			args = args[:100] + "..."
		}
		fmt.Fprintf(a.out, "  [%s:%d] Calling: %s(%s)\n", a.config.Name, iteration, tc.Name, args)
	}
}

var _ tools.Specialist = (*Agent)(nil)
