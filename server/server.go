// Package server exposes the pipeline, retrieval and SQL access over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/internal/metrics"
	"github.com/richinex/musicbi/orchestration"
	"github.com/richinex/musicbi/sqlaccess"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Asker answers a query end to end.
type Asker interface {
	Run(ctx context.Context, query string) (orchestration.Result, error)
}

// Retriever returns the documents closest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Databases is the read-only SQL surface served by the API.
type Databases interface {
	ListDatabases(ctx context.Context) []sqlaccess.DatabaseSummary
	ExecuteSelect(ctx context.Context, identifier, sql string, params map[string]any) (sqlaccess.ResultSet, error)
}

// Server holds the services behind the routes. Any of them may be nil;
// their routes then answer with a CONFIG error.
type Server struct {
	Asker     Asker
	Retriever Retriever
	Databases Databases
	Logger    *slog.Logger
	// DefaultTopK applies when a retrieve request omits k.
	DefaultTopK int
}

type askRequest struct {
	Query string `json:"query"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type retrieveResponse struct {
	Documents []string `json:"documents"`
}

type sqlRequest struct {
	DatabaseIdentifier string         `json:"database_identifier"`
	SQL                string         `json:"sql"`
	Params             map[string]any `json:"params"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/sql/query", s.handleSQL)
		r.Get("/databases", s.handleDatabases)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-serverErrors; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.Asker == nil {
		s.writeError(w, r, apperror.Config("no LLM provider configured"))
		return
	}
	var req askRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Asker.Run(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.Retriever == nil {
		s.writeError(w, r, apperror.Config("knowledge retrieval is not configured"))
		return
	}
	var req retrieveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.K <= 0 {
		req.K = s.DefaultTopK
	}
	docs, err := s.Retriever.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Documents: docs})
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	if s.Databases == nil {
		s.writeError(w, r, apperror.Config("no databases registered"))
		return
	}
	var req sqlRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := s.Databases.ExecuteSelect(r.Context(), req.DatabaseIdentifier, req.SQL, req.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	if s.Databases == nil {
		s.writeError(w, r, apperror.Config("no databases registered"))
		return
	}
	writeJSON(w, http.StatusOK, s.Databases.ListDatabases(r.Context()))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.Wrap(apperror.CodeValidation, "invalid request body", err)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal("request failed", err)
	}
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		s.logger().Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	appErr.WriteJSON(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
