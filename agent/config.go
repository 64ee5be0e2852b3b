// Agent configuration and its fluent builder.

package agent

import (
	"github.com/richinex/musicbi/tools"
)

// DefaultMaxIterations bounds the model/tool round trips of one run.
const DefaultMaxIterations = 10

// Config describes one agent: the router, a specialist or the reporter.
type Config struct {
	Name        string
	Description string

	// SystemPrompt is sent first on every run. Empty means no system message.
	SystemPrompt string

	// Tools in the order they are offered to the model.
	Tools []tools.Tool

	// MaxIterations bounds model calls per run. Zero means DefaultMaxIterations.
	MaxIterations int

	// Quiet suppresses tool-call chatter on the output writer.
	Quiet bool

	// ParallelTools runs the tool calls of one model turn concurrently.
	// Results are still appended in request order.
	ParallelTools bool
}

// HasTools reports whether the model is offered any tool.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

func (c *Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Builder assembles a Config:
//
//	cfg := agent.NewBuilder("sql").SystemPrompt(p).Tools(tools.SQLTools(db)...).Build()
type Builder struct {
	config Config
}

// NewBuilder starts a Config for the named agent.
func NewBuilder(name string) *Builder {
	return &Builder{config: Config{Name: name}}
}

func (b *Builder) Description(description string) *Builder {
	b.config.Description = description
	return b
}

func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// Tools appends to the tool list, keeping order.
func (b *Builder) Tools(list ...tools.Tool) *Builder {
	b.config.Tools = append(b.config.Tools, list...)
	return b
}

func (b *Builder) MaxIterations(n int) *Builder {
	b.config.MaxIterations = n
	return b
}

func (b *Builder) Quiet(quiet bool) *Builder {
	b.config.Quiet = quiet
	return b
}

func (b *Builder) ParallelTools(enabled bool) *Builder {
	b.config.ParallelTools = enabled
	return b
}

// Build returns a copy of the Config; later builder calls do not affect it.
func (b *Builder) Build() Config {
	cfg := b.config
	if cfg.Description == "" {
		cfg.Description = cfg.Name + " agent"
	}
	cfg.Tools = append([]tools.Tool(nil), cfg.Tools...)
	return cfg
}
