package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/orchestration"
	"github.com/richinex/musicbi/sqlaccess"
)

type fakeAsker struct{ err error }

func (f fakeAsker) Run(_ context.Context, query string) (orchestration.Result, error) {
	if f.err != nil {
		return orchestration.Result{}, f.err
	}
	if strings.TrimSpace(query) == "" {
		return orchestration.Result{}, apperror.Validation("query is empty")
	}
	return orchestration.Result{
		RunID:  "run-1",
		Query:  query,
		Answer: "AC/DC",
		Route:  orchestration.RouteResult{Decision: orchestration.StateToolCallSQL},
	}, nil
}

type fakeRetriever struct{ gotK int }

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]string, error) {
	f.gotK = k
	return []string{"<document>a</document>", "<document>b</document>"}[:min(k, 2)], nil
}

type fakeDatabases struct{}

func (fakeDatabases) ListDatabases(context.Context) []sqlaccess.DatabaseSummary {
	return []sqlaccess.DatabaseSummary{{Identifier: "chinook sqlite", DBType: "sqlite"}}
}

func (fakeDatabases) ExecuteSelect(_ context.Context, id, sql string, _ map[string]any) (sqlaccess.ResultSet, error) {
	if id != "chinook sqlite" {
		return sqlaccess.ResultSet{}, apperror.NotFound("unknown database identifier %q", id)
	}
	if !strings.HasPrefix(sql, "SELECT") {
		return sqlaccess.ResultSet{}, apperror.Validation("only SELECT statements are allowed")
	}
	return sqlaccess.ResultSet{Columns: []string{"n"}, Rows: [][]any{{3}}, RowCount: 1}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func newHandler(r *fakeRetriever) http.Handler {
	s := &Server{
		Asker:       fakeAsker{},
		Retriever:   r,
		Databases:   fakeDatabases{},
		DefaultTopK: 5,
	}
	return s.Handler()
}

func TestHealthz(t *testing.T) {
	rec := do(t, newHandler(&fakeRetriever{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	rec := do(t, newHandler(&fakeRetriever{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAsk(t *testing.T) {
	h := newHandler(&fakeRetriever{})

	rec := do(t, h, http.MethodPost, "/v1/ask", `{"query":"Which artist has the highest sales?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res orchestration.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "AC/DC", res.Answer)
	assert.Equal(t, orchestration.StateToolCallSQL, res.Route.Decision)

	rec = do(t, h, http.MethodPost, "/v1/ask", `{"query":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/v1/ask", `{"question":"typo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAskFailures(t *testing.T) {
	s := &Server{Asker: fakeAsker{err: errors.New("provider down")}}
	rec := do(t, s.Handler(), http.MethodPost, "/v1/ask", `{"query":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.CodeInternal, errorCode(t, rec))

	s = &Server{}
	rec = do(t, s.Handler(), http.MethodPost, "/v1/ask", `{"query":"q"}`)
	assert.Equal(t, apperror.CodeConfig, errorCode(t, rec))
}

func TestRetrieve(t *testing.T) {
	r := &fakeRetriever{}
	h := newHandler(r)

	rec := do(t, h, http.MethodPost, "/v1/retrieve", `{"query":"sales"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, r.gotK)
	assert.JSONEq(t, `{"documents":["<document>a</document>","<document>b</document>"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/retrieve", `{"query":"sales","k":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, r.gotK)
	assert.JSONEq(t, `{"documents":["<document>a</document>"]}`, rec.Body.String())
}

func TestSQLQuery(t *testing.T) {
	h := newHandler(&fakeRetriever{})

	rec := do(t, h, http.MethodPost, "/v1/sql/query",
		`{"database_identifier":"chinook sqlite","sql":"SELECT COUNT(*) AS n FROM Artist"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"columns":["n"],"rows":[[3]],"row_count":1,"truncated":false}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/sql/query",
		`{"database_identifier":"chinook sqlite","sql":"DROP TABLE Artist"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/sql/query",
		`{"database_identifier":"nonexistent","sql":"SELECT 1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFound, errorCode(t, rec))
}

func TestDatabases(t *testing.T) {
	rec := do(t, newHandler(&fakeRetriever{}), http.MethodGet, "/v1/databases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"identifier":"chinook sqlite","description":"","db_type":"sqlite"}]`, rec.Body.String())
}
