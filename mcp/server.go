// Package mcp exposes the data tools over the Model Context Protocol so
// other agents can query the databases and the knowledge base directly.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/richinex/musicbi/tools"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// Server serves a fixed set of tools. Calls go through the tool executor,
// so validation, timeouts and retries match what the agents get.
type Server struct {
	mcpServer *server.MCPServer
	executor  *tools.Executor
	logger    *slog.Logger
}

// NewServer registers every tool in list. A nil logger uses slog.Default.
func NewServer(list []tools.Tool, config tools.ToolConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: server.NewMCPServer("musicbi", Version, server.WithToolCapabilities(false)),
		executor:  tools.NewExecutor(config, tools.WithExecutorLogger(logger)),
		logger:    logger,
	}
	for _, t := range list {
		s.mcpServer.AddTool(toolSpec(t.Metadata()), s.handler(t))
	}
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// toolSpec declares meta's parameters with the MCP property builders.
// Unknown parameter types are declared as strings.
func toolSpec(meta tools.ToolMetadata) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(meta.Description)}
	for _, p := range meta.Parameters {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.ParamType {
		case "object":
			opts = append(opts, mcp.WithObject(p.Name, props...))
		case "integer", "number":
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(meta.Name, opts...)
}

func (s *Server) handler(t tools.Tool) server.ToolHandlerFunc {
	name := t.Metadata().Name
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		result, err := s.executor.Execute(ctx, t, args)
		if err != nil {
			return nil, err
		}
		if !result.Success() {
			s.logger.Warn("mcp tool failed", "tool", name, "error", result.Error)
			return mcp.NewToolResultError(result.Text()), nil
		}
		s.logger.Debug("mcp tool call", "tool", name, "output_bytes", len(result.Output))
		return mcp.NewToolResultText(result.Text()), nil
	}
}
