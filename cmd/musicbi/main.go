// Package main provides the musicbi CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/musicbi/cli"
)

var (
	// Global flags
	provider    string
	maxIter     int
	toolRetries uint32
	verbose     bool
	configPath  string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "musicbi",
		Short: "Business intelligence assistant for a music store",
		Long: `Answer business questions with a router agent that delegates to specialists:

- sql_assistant: inspects the registered databases and runs read-only SQL
- knowledge_assistant: searches the documentation knowledge base

A report agent turns the specialists' findings into the final answer.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini); defaults to LLM_PROVIDER")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 10, "Maximum iterations for agent execution")
	rootCmd.PersistentFlags().Uint32Var(&toolRetries, "tool-retries", 3, "Maximum retries for tool execution")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML settings file layered over the environment")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(sqlCmd())
	rootCmd.AddCommand(knowledgeCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:    provider,
		MaxIter:     maxIter,
		ToolRetries: toolRetries,
		Verbose:     verbose,
		ConfigPath:  configPath,
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a question with the router, the specialists and the report agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(cmd.Context(), strings.Join(args, " "), options())
		},
	}
}

func sqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sql [query]",
		Short: "Answer a question with the SQL specialist only",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SQL(cmd.Context(), strings.Join(args, " "), options())
		},
	}
}

func knowledgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "knowledge [query]",
		Short: "Answer a question with the knowledge specialist only",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Knowledge(cmd.Context(), strings.Join(args, " "), options())
		},
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or query the knowledge index",
	}

	build := &cobra.Command{
		Use:   "build [corpus-file]",
		Short: "Rebuild the index from a file of <document>...</document> records",
		Long: `Rebuild the knowledge index from a corpus file.

The previous index and chunk store contents are replaced. With the memory
vector backend the index lives only as long as the process; set
KNOWLEDGE_CORPUS to load it on every start instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.BuildIndex(cmd.Context(), args[0], options())
		},
	}

	var k int
	query := &cobra.Command{
		Use:   "query [query]",
		Short: "Print the raw documents retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.QueryIndex(cmd.Context(), strings.Join(args, " "), k, options())
		},
	}
	query.Flags().IntVarP(&k, "k", "k", 0, "Number of documents (default KNOWLEDGE_TOP_K)")

	cmd.AddCommand(build, query)
	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(cmd.Context(), verboseTools, options())
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "params", "P", false, "Show tool parameters")

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API:

  POST /v1/ask          {"query": "..."}
  POST /v1/retrieve     {"query": "...", "k": 5}
  POST /v1/sql/query    {"database_identifier": "...", "sql": "...", "params": {}}
  GET  /v1/databases
  GET  /healthz
  GET  /metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), addr, options())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the SQL and knowledge tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ServeMCP(cmd.Context(), options())
		},
	}
}
