// Tool execution with bounded retries.
//
// Information Hiding:
// - Retry and backoff policy hidden
// - Per-attempt deadline hidden
// - Tool panics converted to INTERNAL failures

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/internal/metrics"
)

const (
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Executor runs tools for agents and the MCP server. Only TRANSIENT
// failures (a locked database, a dropped connection) are retried; a
// rejected statement or unknown identifier goes straight back to the
// model so it can correct itself.
type Executor struct {
	config ToolConfig
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger logs retries and give-ups.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates a tool executor with the given configuration.
func NewExecutor(config ToolConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultToolConfig())
}

// Execute validates args once, then runs the tool until it succeeds, fails
// with a non-retryable error, or runs out of attempts. Tool failures come
// back as a failed ToolResult; the returned error is reserved for
// cancellation and errors the tool raised outside its result.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	name := tool.Metadata().Name
	start := time.Now()
	finish := func(ok bool) {
		metrics.RecordToolCall(name, ok, time.Since(start))
	}

	if err := tool.Validate(args); err != nil {
		finish(false)
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	attempts := e.config.Retries()
	timeout := time.Duration(e.config.Timeout()) * time.Second

	var lastErr error
	for attempt := uint32(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			e.logger.Debug("retrying tool", "tool", name, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				finish(false)
				return ToolResult{}, err
			}
		}

		result, err := runAttempt(ctx, tool, args, timeout)
		switch {
		case err != nil && !apperror.IsRetryable(err):
			finish(false)
			return ToolResult{}, err
		case err != nil:
			lastErr = err
		case result.Success() || !apperror.IsRetryable(result.Error):
			finish(result.Success())
			return result, nil
		default:
			lastErr = result.Error
		}
	}

	finish(false)
	e.logger.Warn("tool gave up", "tool", name, "attempts", attempts, "error", lastErr)
	msg := "unknown error"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", name, attempts, msg), nil
}

// ExecuteOnce validates and runs a tool a single time.
func ExecuteOnce(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}
	return runAttempt(ctx, tool, args, 0)
}

// runAttempt runs one call under its own deadline. A zero timeout means
// the caller's context alone bounds it. When the attempt deadline passes
// while ctx is still live, the call fails as a result, not an error.
func runAttempt(ctx context.Context, tool Tool, args json.RawMessage, timeout time.Duration) (result ToolResult, err error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = FailureResult(apperror.Internal(fmt.Sprintf("tool %s panicked", tool.Metadata().Name), fmt.Errorf("%v", r)))
			err = nil
		}
	}()
	result, err = tool.Execute(attemptCtx, args)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
		return FailureResultf("tool '%s' timed out after %s", tool.Metadata().Name, timeout), nil
	}
	return result, err
}

// backoff doubles from baseBackoff per attempt, capped at maxBackoff.
func backoff(attempt uint32) time.Duration {
	if attempt > 16 {
		return maxBackoff
	}
	delay := baseBackoff << attempt
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
