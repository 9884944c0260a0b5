// Package api exposes the query service over HTTP.
//
// POST /query accepts a JSON query body (see pkg/query.Request), builds the
// SQL statement and executes it against ClickHouse. GET /health reports
// backing-store liveness. The server depends only on the narrow Querier
// interface so tests can drive it without a database.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventsift/eventsift/pkg/query"
)

type (
	// Querier is the subset of the ClickHouse client the server needs.
	Querier interface {
		Select(ctx context.Context, sql string) ([]map[string]any, error)
		Ping(ctx context.Context) error
	}

	// Server handles query API requests.
	Server struct {
		querier Querier
		table   string
		logger  *slog.Logger
		mux     *http.ServeMux
	}

	// queryResponse is the body of a successful POST /query.
	queryResponse struct {
		Data        []map[string]any `json:"data"`
		SQL         string           `json:"sql"`
		Fingerprint string           `json:"fingerprint"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// NewServer returns a Server querying table through querier. A nil logger
// falls back to slog.Default.
func NewServer(querier Querier, table string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		querier: querier,
		table:   table,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/query", s.handleQuery)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Building a statement from a validated request is a pure function of
	// its input; a failure here is a defect, not a user error, and
	// retrying the same input cannot succeed.
	stmt, err := req.BuildSelect(s.table)
	if err != nil {
		s.logger.Error("failed to build query", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to build query"})
		return
	}

	start := time.Now()
	rows, err := s.querier.Select(r.Context(), stmt.SQL)
	if err != nil {
		s.logger.Error("query execution failed",
			"fingerprint", stmt.Fingerprint,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query execution failed"})
		return
	}

	s.logger.Info("query executed",
		"fingerprint", stmt.Fingerprint,
		"rows", len(rows),
		"duration", time.Since(start),
	)
	writeJSON(w, http.StatusOK, queryResponse{
		Data:        rows,
		SQL:         stmt.SQL,
		Fingerprint: stmt.Fingerprint,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.querier.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
