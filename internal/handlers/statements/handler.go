// Package statements serves the JSON API for transactions and auto-commit
// queries.
package statements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/services/transaction"
	"github.com/kevin07696/txrunner/pkg/resilience"
	"github.com/kevin07696/txrunner/pkg/shutdown"
)

const (
	maxBodyBytes  = 1 << 20
	maxStatements = 1000

	codeShuttingDown = "SHUTTING_DOWN"
	codeTimeout      = "TIMEOUT"
)

// TransactionRunner is the subset of *transaction.Runner the handler uses
type TransactionRunner interface {
	RunTx(ctx context.Context, txOpts domain.TxOptions, stmts []domain.Statement) (*transaction.Outcome, error)
	Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error)
	Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error)
}

// Handler serves the statement API
type Handler struct {
	runner   TransactionRunner
	tracker  *shutdown.InFlightTracker
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewHandler creates a new statement API handler
func NewHandler(
	runner TransactionRunner,
	tracker *shutdown.InFlightTracker,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		runner:   runner,
		tracker:  tracker,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Register mounts the API routes on mux. wrap, if non-nil, decorates each
// route with its pattern (used for request metrics).
func (h *Handler) Register(mux *http.ServeMux, wrap func(pattern string, next http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(_ string, next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /{$}", wrap("/", http.HandlerFunc(h.Root)))
	mux.Handle("POST /api/v1/query", wrap("/api/v1/query", http.HandlerFunc(h.Query)))
	mux.Handle("POST /api/v1/transactions", wrap("/api/v1/transactions", http.HandlerFunc(h.RunTransaction)))
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Server is running")
}

// RunTransaction handles POST /api/v1/transactions
func (h *Handler) RunTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	stmts, txOpts, err := req.toDomain()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{Code: string(domain.ErrorCodeValidationFailed), Error: err.Error()})
		return
	}

	if !h.tracker.Add() {
		h.respondError(w, http.StatusServiceUnavailable, ErrorResponse{Code: codeShuttingDown, Error: "server is shutting down"})
		return
	}
	defer h.tracker.Done()

	ctx, cancel := h.timeouts.TransactionContext(r.Context())
	defer cancel()

	out, err := h.runner.RunTx(ctx, txOpts, stmts)
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, TransactionResponse{
		ID:         out.ID.String(),
		State:      out.State.String(),
		Executed:   out.Executed,
		DurationMS: out.Duration.Milliseconds(),
	})
}

// Query handles POST /api/v1/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{Code: string(domain.ErrorCodeValidationFailed), Error: "sql is required"})
		return
	}

	if !h.tracker.Add() {
		h.respondError(w, http.StatusServiceUnavailable, ErrorResponse{Code: codeShuttingDown, Error: "server is shutting down"})
		return
	}
	defer h.tracker.Done()

	ctx, cancel := h.timeouts.TransactionContext(r.Context())
	defer cancel()

	stmt := domain.NewStatement(req.SQL, normalizeArgs(req.Args)...)

	if req.ReturnsRows {
		rows, err := h.runner.Query(ctx, stmt)
		if err != nil {
			h.respondRunError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, QueryResponse{Columns: rows.Columns, Rows: rows.Values, RowsAffected: int64(rows.Len())})
		return
	}

	res, err := h.runner.Exec(ctx, stmt)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, QueryResponse{Tag: res.Tag, RowsAffected: res.RowsAffected})
}

func (req *TransactionRequest) toDomain() ([]domain.Statement, domain.TxOptions, error) {
	if len(req.Statements) == 0 {
		return nil, domain.TxOptions{}, errors.New("statements must not be empty")
	}
	if len(req.Statements) > maxStatements {
		return nil, domain.TxOptions{}, fmt.Errorf("at most %d statements per transaction", maxStatements)
	}

	level, err := domain.ParseIsolationLevel(req.IsolationLevel)
	if err != nil {
		return nil, domain.TxOptions{}, err
	}

	stmts := make([]domain.Statement, len(req.Statements))
	for i, s := range req.Statements {
		if strings.TrimSpace(s.SQL) == "" {
			return nil, domain.TxOptions{}, fmt.Errorf("statement %d: sql is required", i)
		}
		stmts[i] = domain.NewStatement(s.SQL, normalizeArgs(s.Args)...)
	}

	return stmts, domain.TxOptions{IsolationLevel: level, ReadOnly: req.ReadOnly}, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, ErrorResponse{Code: string(domain.ErrorCodeValidationFailed), Error: "request body too large"})
			return false
		}
		h.logger.Debug("Failed to read request body", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, ErrorResponse{Code: string(domain.ErrorCodeValidationFailed), Error: "failed to read request body"})
		return false
	}
	if err := decodeStrict(body, v); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{Code: string(domain.ErrorCodeValidationFailed), Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// respondRunError maps runner failures onto HTTP statuses
func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var stmtErr *domain.StatementError

	switch {
	case domain.IsPoolExhausted(err):
		w.Header().Set("Retry-After", "1")
		h.respondError(w, http.StatusServiceUnavailable, ErrorResponse{
			Code:  string(domain.ErrorCodePoolExhausted),
			Error: err.Error(),
			Phase: string(domain.PhaseAcquire),
		})

	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, statementBody(codeTimeout, err))

	case errors.As(err, &stmtErr):
		h.respondError(w, http.StatusUnprocessableEntity, statementBody(string(domain.ErrorCodeStatementFailed), err))

	default:
		h.logger.Error("Unexpected transaction failure", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, ErrorResponse{Code: string(domain.ErrorCodeInternalError), Error: "internal error"})
	}
}

func statementBody(code string, err error) ErrorResponse {
	body := ErrorResponse{Code: code, Error: err.Error()}

	var stmtErr *domain.StatementError
	if errors.As(err, &stmtErr) {
		body.Error = stmtErr.Err.Error()
		body.Phase = string(stmtErr.Phase)
		body.SQLState = stmtErr.SQLState
		if stmtErr.Index >= 0 {
			index := stmtErr.Index
			body.Index = &index
		}
		if stmtErr.Rollback != nil {
			body.RollbackError = stmtErr.Rollback.Err.Error()
		}
	}
	return body
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, body ErrorResponse) {
	body.Success = false
	h.respondJSON(w, statusCode, body)
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}
