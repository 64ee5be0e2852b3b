// Command execution for CLI commands.
//
// Information Hiding:
// - App construction and teardown hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/mcp"
	"github.com/richinex/musicbi/server"
	"github.com/richinex/musicbi/tools"
)

// withApp runs fn against a fresh App and closes it afterwards.
func withApp(ctx context.Context, opts Options, agents bool, fn func(*App) error) (err error) {
	app, err := NewApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); err == nil {
			err = cerr
		}
	}()
	if agents {
		if err := app.EnableAgents(); err != nil {
			return err
		}
	}
	return fn(app)
}

// Ask answers query with the full router and report pipeline.
func Ask(ctx context.Context, query string, opts Options) error {
	return withApp(ctx, opts, true, func(app *App) error {
		w := opts.output()
		res, err := app.Pipeline.Run(ctx, query)
		if err != nil {
			return err
		}
		if opts.Verbose {
			printRoute(w, res.Route)
		}
		renderMarkdown(w, res.Answer)
		if opts.Verbose {
			printTokenStats(w, res.TokenStats, res.ExecutionTimeMs)
		}
		return nil
	})
}

// SQL answers query with the SQL specialist alone.
func SQL(ctx context.Context, query string, opts Options) error {
	return withApp(ctx, opts, true, func(app *App) error {
		if app.SQLAgent == nil {
			return fmt.Errorf("no database registered: set SQL_CONFIG or SQLITE_CHINOOK")
		}
		return runSpecialist(ctx, app.SQLAgent, tools.NewSQLAssistant(app.SQLAgent).Prompt(query), opts)
	})
}

// Knowledge answers query with the knowledge specialist alone.
func Knowledge(ctx context.Context, query string, opts Options) error {
	return withApp(ctx, opts, true, func(app *App) error {
		return runSpecialist(ctx, app.KnowledgeAgent, tools.NewKnowledgeAssistant(app.KnowledgeAgent).Prompt(query), opts)
	})
}

func runSpecialist(ctx context.Context, a *agent.Agent, prompt string, opts Options) error {
	w := opts.output()
	resp, err := a.Run(ctx, prompt)
	switch resp.Type {
	case agent.ResponseSuccess:
		renderMarkdown(w, resp.Result)
		if opts.Verbose && len(resp.Invocations) > 0 {
			fmt.Fprintf(w, "(%d tool calls: %s)\n", len(resp.Invocations), strings.Join(resp.ToolNames(), ", "))
		}
		return nil
	case agent.ResponseTimeout:
		return fmt.Errorf("%s timed out: %w", a.Name(), err)
	default:
		return fmt.Errorf("%s failed: %w", a.Name(), err)
	}
}

// BuildIndex rebuilds the knowledge index from a corpus file.
func BuildIndex(ctx context.Context, corpusPath string, opts Options) error {
	return withApp(ctx, opts, false, func(app *App) error {
		stats, err := BuildIndexFromFile(ctx, app.Retriever, corpusPath)
		if err != nil {
			return err
		}
		if stats.Stored >= 0 {
			fmt.Fprintf(opts.output(), "Indexed %d chunks (%d unique, %d stored) in %s\n", stats.Chunks, stats.Unique, stats.Stored, stats.Duration)
		} else {
			fmt.Fprintf(opts.output(), "Indexed %d chunks (%d unique) in %s\n", stats.Chunks, stats.Unique, stats.Duration)
		}
		return nil
	})
}

// QueryIndex prints the raw documents retrieved for query.
func QueryIndex(ctx context.Context, query string, k int, opts Options) error {
	return withApp(ctx, opts, false, func(app *App) error {
		if k <= 0 {
			k = app.Settings.Knowledge.TopK
		}
		docs, err := app.Retriever.Retrieve(ctx, query, k)
		if err != nil {
			return err
		}
		w := opts.output()
		if len(docs) == 0 {
			fmt.Fprintln(w, "(knowledge base is empty)")
			return nil
		}
		for i, d := range docs {
			fmt.Fprintf(w, "===== %d =====\n%s\n", i+1, d)
		}
		return nil
	})
}

// ListTools lists the data tools and the specialists the router can call.
func ListTools(ctx context.Context, verbose bool, opts Options) error {
	return withApp(ctx, opts, false, func(app *App) error {
		w := opts.output()
		list := app.DataTools()
		list = append(list,
			tools.NewSQLAssistant(nil),
			tools.NewKnowledgeAssistant(nil),
		)
		if app.Settings.Agent.MetricsAgent {
			list = append(list, tools.NewMetricsAssistant(nil))
		}

		fmt.Fprintln(w, "Available tools:")
		fmt.Fprintln(w)
		for _, t := range list {
			meta := t.Metadata()
			fmt.Fprintf(w, "  %s\n", meta.Name)
			fmt.Fprintf(w, "    %s\n", firstLine(meta.Description))

			if verbose && len(meta.Parameters) > 0 {
				fmt.Fprintln(w, "    Parameters:")
				for _, param := range meta.Parameters {
					req := ""
					if param.Required {
						req = "*"
					}
					fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
				}
			}
			fmt.Fprintln(w)
		}
		return nil
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Serve runs the HTTP API until ctx is cancelled. The ask route is only
// live when a provider can be built.
func Serve(ctx context.Context, addr string, opts Options) error {
	return withApp(ctx, opts, false, func(app *App) error {
		srv := &server.Server{
			Retriever:   app.Retriever,
			Logger:      app.Logger,
			DefaultTopK: app.Settings.Knowledge.TopK,
		}
		if app.SQL != nil {
			srv.Databases = app.SQL
		}
		if err := app.EnableAgents(); err != nil {
			app.Logger.Warn("ask endpoint disabled", "error", err)
		} else {
			srv.Asker = app.Pipeline
		}
		return srv.ListenAndServe(ctx, addr)
	})
}

// ServeMCP serves the data tools over MCP on stdin/stdout.
func ServeMCP(ctx context.Context, opts Options) error {
	return withApp(ctx, opts, false, func(app *App) error {
		return mcp.NewServer(app.DataTools(), app.ToolConfig(), app.Logger).ServeStdio()
	})
}
