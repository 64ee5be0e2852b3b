// Application wiring for CLI commands.
//
// Information Hiding:
// - Backend selection (embedder, index, chunk store) hidden
// - Agent and pipeline construction hidden
// - Resource teardown hidden behind Close

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/config"
	"github.com/richinex/musicbi/embedding"
	"github.com/richinex/musicbi/knowledge"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/orchestration"
	"github.com/richinex/musicbi/sqlaccess"
	"github.com/richinex/musicbi/storage"
	"github.com/richinex/musicbi/tools"
	"github.com/richinex/musicbi/vectorindex"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	MaxIter     int
	ToolRetries uint32
	Verbose     bool
	// ConfigPath is a YAML settings file layered over the environment.
	ConfigPath string
	// Output receives answers and agent progress. Defaults to stdout.
	Output io.Writer
	// LLM overrides the provider built from settings.
	LLM llm.Provider
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		MaxIter:     10,
		ToolRetries: 3,
		Verbose:     false,
	}
}

func (o Options) output() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// App holds every long-lived service. It is built once per command and
// torn down with Close.
type App struct {
	Settings  config.Settings
	Logger    *slog.Logger
	Embedder  embedding.Embedder
	Index     vectorindex.Index
	Store     storage.ChunkStore
	Retriever *knowledge.Retriever
	// SQL is nil when no database is registered.
	SQL *sqlaccess.Adapter

	// Set by EnableAgents.
	Provider       llm.Provider
	SQLAgent       *agent.Agent
	KnowledgeAgent *agent.Agent
	Router         *orchestration.Router
	Pipeline       *orchestration.Pipeline

	opts    Options
	closers []func() error
}

// NewApp loads settings and opens the data services. Agents are built
// separately by EnableAgents since only some commands need a model.
func NewApp(ctx context.Context, opts Options) (_ *App, err error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, err
	}
	if opts.ConfigPath != "" {
		if err := settings.LoadFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if opts.MaxIter > 0 {
		settings.Agent.MaxIterations = opts.MaxIter
	}

	a := &App{
		Settings: settings,
		Logger:   newLogger(settings.LogLevel, opts.Verbose),
		opts:     opts,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Embedder, err = newEmbedder(ctx, settings.Embedding); err != nil {
		return nil, err
	}
	a.onClose(func() error { return embedding.Close(a.Embedder) })

	if a.Index, err = a.newIndex(ctx); err != nil {
		return nil, err
	}
	if err = a.Index.Create(ctx); err != nil {
		return nil, err
	}
	if a.Store, err = a.newChunkStore(ctx); err != nil {
		return nil, err
	}
	if a.Retriever, err = knowledge.NewRetriever(a.Store, a.Embedder, a.Index,
		knowledge.WithLogger(a.Logger)); err != nil {
		return nil, err
	}
	if err = a.preloadCorpus(ctx); err != nil {
		return nil, err
	}
	if a.SQL, err = a.newSQL(); err != nil {
		return nil, err
	}
	if a.SQL != nil {
		a.onClose(a.SQL.Close)
	}
	return a, nil
}

// EnableAgents builds the provider, the specialists, the router and the
// pipeline.
func (a *App) EnableAgents() error {
	if a.Pipeline != nil {
		return nil
	}
	provider := a.opts.LLM
	if provider == nil {
		p, err := createProvider(a.Settings.LLM)
		if err != nil {
			return err
		}
		provider = p
	}
	a.Provider = provider

	agentOpts := orchestration.Options{
		MaxIterations: a.Settings.Agent.MaxIterations,
		Quiet:         a.Settings.Agent.RouterQuiet,
		Output:        a.opts.output(),
		Logger:        a.Logger,
		ToolConfig:    tools.ToolConfig{MaxRetries: a.opts.ToolRetries},
	}

	var specialists []tools.Tool
	if a.SQL != nil {
		sqlAgent, err := orchestration.NewSQLSpecialist(provider, a.SQL, agentOpts)
		if err != nil {
			return err
		}
		a.SQLAgent = sqlAgent
		specialists = append(specialists, tools.NewSQLAssistant(sqlAgent))
	} else {
		a.Logger.Warn("no database registered; sql_assistant disabled")
	}

	knowledgeAgent, err := orchestration.NewKnowledgeSpecialist(provider, a.Retriever, a.Settings.Knowledge.TopK, agentOpts)
	if err != nil {
		return err
	}
	a.KnowledgeAgent = knowledgeAgent
	specialists = append(specialists, tools.NewKnowledgeAssistant(knowledgeAgent))

	if a.Settings.Agent.MetricsAgent {
		metricsAgent, err := orchestration.NewMetricsSpecialist(provider, agentOpts)
		if err != nil {
			return err
		}
		specialists = append(specialists, tools.NewMetricsAssistant(metricsAgent))
	}

	// both specialists requested in one turn run concurrently
	routerOpts := agentOpts
	routerOpts.ParallelTools = true
	router, err := orchestration.NewRouter(provider, specialists, "", routerOpts)
	if err != nil {
		return err
	}
	a.Router = router
	a.Pipeline = orchestration.NewPipeline(router, orchestration.NewReporter(provider), a.Logger)
	return nil
}

// DataTools returns the tools that touch data directly: the SQL tools
// (when a database is registered) and retrieve_knowledge.
func (a *App) DataTools() []tools.Tool {
	var list []tools.Tool
	if a.SQL != nil {
		list = append(list, tools.SQLTools(a.SQL)...)
	}
	return append(list, tools.NewRetrieveKnowledgeTool(a.Retriever, a.Settings.Knowledge.TopK))
}

// ToolConfig is the executor configuration derived from the options.
func (a *App) ToolConfig() tools.ToolConfig {
	return tools.ToolConfig{MaxRetries: a.opts.ToolRetries}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Backend {
	case "hash":
		return embedding.NewHashing(cfg.Dim), nil
	case "openai":
		key, err := config.APIKeyFor("openai")
		if err != nil {
			return nil, err
		}
		return embedding.NewOpenAI(key, cfg.Model, cfg.Dim), nil
	case "gemini":
		key, err := config.APIKeyFor("gemini")
		if err != nil {
			return nil, err
		}
		return embedding.NewGemini(ctx, key, cfg.Model, cfg.Dim)
	case "ollama":
		return embedding.NewOllama(cfg.OllamaHost, cfg.Model, cfg.Dim)
	case "fastembed":
		return embedding.NewFastEmbed(cfg.CacheDir, 0)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

func (a *App) newIndex(ctx context.Context) (vectorindex.Index, error) {
	cfg := a.Settings.Vector
	metric, err := vectorindex.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	dim := a.Embedder.Dimension()
	switch cfg.Backend {
	case "memory":
		return vectorindex.NewMemory(dim, metric)
	case "qdrant":
		return vectorindex.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.Collection, dim, metric)
	case "pgvector":
		idx, err := vectorindex.NewPGVector(ctx, cfg.PGVectorURL, cfg.Collection, dim, metric)
		if err != nil {
			return nil, err
		}
		a.onClose(idx.Close)
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

func (a *App) newChunkStore(ctx context.Context) (storage.ChunkStore, error) {
	cfg := a.Settings.ChunkStore
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStore(cfg.Prefix), nil
	case "sqlite":
		s, err := storage.OpenSqlite(cfg.SqlitePath, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	case "redis":
		s := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
		a.onClose(s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown chunk store %q", cfg.Backend)
	}
}

// preloadCorpus fills an in-memory index from the configured corpus file,
// since nothing else survives between processes.
func (a *App) preloadCorpus(ctx context.Context) error {
	path := a.Settings.Knowledge.CorpusPath
	if path == "" || a.Settings.Vector.Backend != "memory" {
		return nil
	}
	stats, err := BuildIndexFromFile(ctx, a.Retriever, path)
	if err != nil {
		return err
	}
	a.Logger.Info("knowledge index loaded", "path", path, "chunks", stats.Chunks, "unique", stats.Unique)
	return nil
}

func (a *App) newSQL() (*sqlaccess.Adapter, error) {
	var cfg *sqlaccess.Config
	switch {
	case a.Settings.SQL.ConfigPath != "":
		c, err := sqlaccess.LoadConfig(a.Settings.SQL.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	case a.Settings.SQL.ChinookPath != "":
		cfg = sqlaccess.ChinookConfig(a.Settings.SQL.ChinookPath)
	default:
		return nil, nil
	}
	return sqlaccess.NewAdapter(cfg, sqlaccess.WithLogger(a.Logger))
}

// BuildIndexFromFile reads a corpus file and rebuilds r's index from it.
func BuildIndexFromFile(ctx context.Context, r *knowledge.Retriever, path string) (knowledge.BuildStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return knowledge.BuildStats{}, fmt.Errorf("read corpus: %w", err)
	}
	return r.BuildIndex(ctx, string(data))
}

func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(cfg.Model).
		BaseURL(cfg.BaseURL).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		APIKey(apiKey)
}

func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
