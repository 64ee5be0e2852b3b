// Package agent provides the tool-calling agent loop.
//
// Contains all types used by agents for responses.
package agent

import (
	"errors"

	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/model"
)

// ErrMaxIterations is returned when the model keeps requesting tools past
// the iteration bound.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// Metadata contains metadata about agent execution.
type Metadata struct {
	ExecutionTimeMs uint64
	AgentName       string
	TokenUsage      llm.TokenUsage
	LLMCalls        int
}

// ResponseType indicates the type of agent response.
type ResponseType int

const (
	ResponseSuccess ResponseType = iota
	ResponseFailure
	ResponseTimeout
)

// String returns the outcome label used in logs and metrics.
func (t ResponseType) String() string {
	switch t {
	case ResponseSuccess:
		return "success"
	case ResponseTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Response represents a response from an agent execution.
type Response struct {
	Type        ResponseType
	Result      string // final text on success
	Error       string // reason on failure or timeout
	Invocations []model.Invocation
	Metadata    Metadata
}

// ResultText returns the result string (for success) or error otherwise.
func (r Response) ResultText() string {
	if r.Type == ResponseSuccess {
		return r.Result
	}
	return r.Error
}

// IsSuccess checks if the response was successful.
func (r Response) IsSuccess() bool {
	return r.Type == ResponseSuccess
}

// ToolNames returns the invoked tool names in call order.
func (r Response) ToolNames() []string {
	return model.Names(r.Invocations)
}
