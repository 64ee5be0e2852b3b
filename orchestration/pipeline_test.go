package orchestration

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/richinex/musicbi/agent"
	"github.com/richinex/musicbi/embedding"
	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/knowledge"
	"github.com/richinex/musicbi/llm"
	"github.com/richinex/musicbi/model"
	"github.com/richinex/musicbi/sqlaccess"
	"github.com/richinex/musicbi/storage"
	"github.com/richinex/musicbi/tools"
	"github.com/richinex/musicbi/vectorindex"
)

const topArtistSQL = `SELECT ar.Name AS Artist, SUM(il.UnitPrice * il.Quantity) AS Sales
FROM InvoiceLine il
JOIN Track t ON t.TrackId = il.TrackId
JOIN Album al ON al.AlbumId = t.AlbumId
JOIN Artist ar ON ar.ArtistId = al.ArtistId
GROUP BY ar.Name ORDER BY Sales DESC LIMIT 1`

func newSalesDB(t *testing.T) *sqlaccess.Adapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chinook.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, Name TEXT)`,
		`CREATE TABLE Album (AlbumId INTEGER PRIMARY KEY, Title TEXT, ArtistId INTEGER)`,
		`CREATE TABLE Track (TrackId INTEGER PRIMARY KEY, Name TEXT, AlbumId INTEGER)`,
		`CREATE TABLE InvoiceLine (InvoiceLineId INTEGER PRIMARY KEY, TrackId INTEGER, UnitPrice NUMERIC, Quantity INTEGER)`,
		`INSERT INTO Artist VALUES (1, 'Iron Maiden'), (2, 'U2')`,
		`INSERT INTO Album VALUES (1, 'Powerslave', 1), (2, 'War', 2)`,
		`INSERT INTO Track VALUES (1, 'Aces High', 1), (2, 'Sunday Bloody Sunday', 2)`,
		`INSERT INTO InvoiceLine VALUES (1, 1, 0.99, 5), (2, 2, 0.99, 2)`,
	} {
		if err := db.Exec(s).Error; err != nil {
			t.Fatal(err)
		}
	}
	sqlDB, _ := db.DB()
	sqlDB.Close()

	a, err := sqlaccess.NewAdapter(sqlaccess.ChinookConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newKnowledge(t *testing.T) *knowledge.Retriever {
	t.Helper()
	emb := embedding.NewHashing(64)
	idx, err := vectorindex.NewMemory(64, vectorindex.Cosine)
	if err != nil {
		t.Fatal(err)
	}
	r, err := knowledge.NewRetriever(storage.NewMemoryStore("docs/"), emb, idx)
	if err != nil {
		t.Fatal(err)
	}
	corpus := `<document>Sales are computed as UnitPrice times Quantity summed over invoice lines.</document>
<document>The router agent prompt lives in the orchestration package.</document>`
	if _, err := r.BuildIndex(context.Background(), corpus); err != nil {
		t.Fatal(err)
	}
	return r
}

// lastToolOutput returns the content of the final tool message.
func lastToolOutput(msgs []llm.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleTool {
			return msgs[i].Content
		}
	}
	return ""
}

type harness struct {
	router, sql, knowledge, report *llm.ScriptedProvider
	pipeline                        *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		router:    llm.NewScriptedProvider("router"),
		sql:       llm.NewScriptedProvider("sql"),
		knowledge: llm.NewScriptedProvider("knowledge"),
		report:    llm.NewScriptedProvider("report"),
	}
	opts := Options{Quiet: true, MaxIterations: 5}

	sqlAgent, err := NewSQLSpecialist(h.sql, newSalesDB(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	knowledgeAgent, err := NewKnowledgeSpecialist(h.knowledge, newKnowledge(t), 0, opts)
	if err != nil {
		t.Fatal(err)
	}
	router, err := NewRouter(h.router, []tools.Tool{
		tools.NewSQLAssistant(sqlAgent),
		tools.NewKnowledgeAssistant(knowledgeAgent),
	}, "", opts)
	if err != nil {
		t.Fatal(err)
	}
	h.pipeline = NewPipeline(router, NewReporter(h.report), nil)
	return h
}

func TestPipelineArtistSalesScenario(t *testing.T) {
	h := newHarness(t)
	const query = "Which artist has the highest sales?"

	h.router.
		Then(llm.ToolCallResponse(llm.NewToolCall("r1", tools.SQLAssistantName, map[string]string{"query": query}))).
		ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
			return llm.TextResponse("SQL assistant found: " + lastToolOutput(msgs)), nil
		})
	h.sql.
		Then(llm.ToolCallResponse(llm.NewToolCall("s1", "execute_select_statement", map[string]string{
			"database_identifier": sqlaccess.ChinookIdentifier,
			"sql":                 topArtistSQL,
		}))).
		ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
			out := lastToolOutput(msgs)
			if !strings.Contains(out, "| Iron Maiden |") {
				return llm.TextResponse("unexpected result: " + out), nil
			}
			return llm.TextResponse("Iron Maiden has the highest sales (4.95)."), nil
		})
	h.report.ThenFunc(func(msgs []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
		if len(tools) != 0 || len(msgs) != 1 {
			return llm.LLMResponse{}, errors.New("reporter must send one message without tools")
		}
		return llm.TextResponse("## Top artist\n" + msgs[0].Content), nil
	})

	res, err := h.pipeline.Run(context.Background(), query)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Route.Decision != StateToolCallSQL {
		t.Errorf("Decision = %s, want %s", res.Route.Decision, StateToolCallSQL)
	}
	want := []RouteState{StateReceived, StateDeciding, StateToolCallSQL, StateAggregated}
	if strings.Join(states(res.Route.Transitions), ",") != strings.Join(states(want), ",") {
		t.Errorf("Transitions = %v", res.Route.Transitions)
	}
	if got := model.Names(res.Route.Invocations); len(got) != 1 || got[0] != tools.SQLAssistantName {
		t.Errorf("router invocations = %v", got)
	}
	if !strings.Contains(res.Route.Output, "Iron Maiden has the highest sales") {
		t.Errorf("router output = %q", res.Route.Output)
	}

	sqlPrompt := h.sql.Calls()[0].Messages[1].Content
	if sqlPrompt != "Run SQL if needed: 'Which artist has the highest sales?'. Use your available tools to write SQL (SELECT ONLY), run SQL, and interprete SQL results properly." {
		t.Errorf("sql specialist prompt = %q", sqlPrompt)
	}
	if h.knowledge.Remaining() != 0 || len(h.knowledge.Calls()) != 0 {
		t.Error("knowledge specialist should not be called")
	}

	wantReport := ReportPrompt(query, res.Route.Output)
	if got := h.report.Calls()[0].Messages[0].Content; got != wantReport {
		t.Errorf("report prompt = %q, want %q", got, wantReport)
	}
	if !strings.HasPrefix(res.Answer, "## Top artist") || res.RunID == "" {
		t.Errorf("result = %+v", res)
	}
	if res.TokenStats.LLMCalls != 5 {
		t.Errorf("LLMCalls = %d, want 5 (router x2 + sql x2 + report)", res.TokenStats.LLMCalls)
	}
	if res.Route.TokenStats.LLMCalls != 4 {
		t.Errorf("route LLMCalls = %d, want 4 (router x2 + sql x2)", res.Route.TokenStats.LLMCalls)
	}
}

func TestPipelineKnowledgeRoute(t *testing.T) {
	h := newHarness(t)
	const query = "Where is the router prompt defined?"

	h.router.
		Then(llm.ToolCallResponse(llm.NewToolCall("r1", tools.KnowledgeAssistantName, map[string]string{"query": query}))).
		ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
			return llm.TextResponse(lastToolOutput(msgs)), nil
		})
	h.knowledge.
		Then(llm.ToolCallResponse(llm.NewToolCall("k1", "retrieve_knowledge", map[string]string{"query": "router agent prompt"}))).
		ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
			return llm.TextResponse(lastToolOutput(msgs)), nil
		})
	h.report.Then(llm.TextResponse("final"))

	res, err := h.pipeline.Run(context.Background(), query)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Route.Decision != StateToolCallKnowledge {
		t.Errorf("Decision = %s", res.Route.Decision)
	}
	if !strings.Contains(res.Route.Output, "orchestration package") {
		t.Errorf("router output = %q, want retrieved document", res.Route.Output)
	}
}

func TestPipelineDirectAnswer(t *testing.T) {
	h := newHarness(t)
	h.router.Then(llm.TextResponse("Hello! I can answer questions about the music store."))
	h.report.Then(llm.TextResponse("Hello!"))

	res, err := h.pipeline.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Route.Decision != StateDirectAnswer || len(res.Route.Invocations) != 0 {
		t.Errorf("route = %+v", res.Route)
	}
	if len(h.sql.Calls())+len(h.knowledge.Calls()) != 0 {
		t.Error("specialists called for a direct answer")
	}
}

func TestPipelineSpecialistFailureReachesRouter(t *testing.T) {
	h := newHarness(t)
	h.router.
		Then(llm.ToolCallResponse(llm.NewToolCall("r1", tools.SQLAssistantName, map[string]string{"query": "sales"}))).
		ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
			return llm.TextResponse(lastToolOutput(msgs)), nil
		})
	// the sql specialist has no script, so its provider fails
	h.report.Then(llm.TextResponse("sorry"))

	res, err := h.pipeline.Run(context.Background(), "sales")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(res.Route.Output, "ERROR: ") {
		t.Errorf("router saw %q, want ERROR text", res.Route.Output)
	}
}

// stalledSpecialist never answers before its context ends.
type stalledSpecialist struct{}

func (stalledSpecialist) Ask(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRouterSurvivesSpecialistTimeout(t *testing.T) {
	p := llm.NewScriptedProvider("router",
		llm.ToolCallResponse(llm.NewToolCall("r1", tools.SQLAssistantName, map[string]string{"query": "sales"})),
	).ThenFunc(func(msgs []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
		return llm.TextResponse(lastToolOutput(msgs)), nil
	})
	opts := Options{Quiet: true, ToolConfig: tools.ToolConfig{TimeoutSecs: 1, MaxRetries: 1}}
	router, err := NewRouter(p, []tools.Tool{tools.NewSQLAssistant(stalledSpecialist{})}, "", opts)
	if err != nil {
		t.Fatal(err)
	}

	res, err := router.Route(context.Background(), "sales")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !strings.HasPrefix(res.Output, "ERROR: ") || !strings.Contains(res.Output, "timed out") {
		t.Errorf("router saw %q, want timeout ERROR text", res.Output)
	}
	if res.Decision != StateToolCallSQL {
		t.Errorf("Decision = %s", res.Decision)
	}
}

func TestPipelineRejectsBlankQuery(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Run(context.Background(), "  ")
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION", err)
	}
	if len(h.router.Calls()) != 0 {
		t.Error("router called for a blank query")
	}
}

func TestPipelineRouterLoopBounded(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.router.Then(llm.ToolCallResponse(llm.NewToolCall("r", "no_such_tool", nil)))
	}
	_, err := h.pipeline.Run(context.Background(), "loop")
	if !errors.Is(err, agent.ErrMaxIterations) {
		t.Errorf("err = %v, want ErrMaxIterations", err)
	}
	if len(h.report.Calls()) != 0 {
		t.Error("reporter called after a router failure")
	}
}

func TestClassify(t *testing.T) {
	inv := func(names ...string) []model.Invocation {
		out := make([]model.Invocation, len(names))
		for i, n := range names {
			out[i] = model.Invocation{Tool: n}
		}
		return out
	}
	tests := []struct {
		name string
		in   []model.Invocation
		want RouteState
	}{
		{"none", nil, StateDirectAnswer},
		{"sql", inv("sql_assistant"), StateToolCallSQL},
		{"sql twice", inv("sql_assistant", "sql_assistant"), StateToolCallSQL},
		{"knowledge", inv("knowledge_assistant"), StateToolCallKnowledge},
		{"both", inv("knowledge_assistant", "sql_assistant"), StateToolCallBoth},
		{"other tools only", inv("metrics_assistant"), StateDirectAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReportPrompt(t *testing.T) {
	got := ReportPrompt("q?", "r")
	want := "The user asked: \"q?\"\n\nIntermediate analysis and results:\nr\n\nYour task: Create a polished, comprehensive final answer that addresses all aspects of the user's question. Use proper formatting, structure the information clearly, and ensure nothing important is lost."
	if got != want {
		t.Errorf("ReportPrompt() = %q", got)
	}
}

func states(s []RouteState) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}
