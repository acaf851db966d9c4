// Package httpapi exposes the mediation pipeline over a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const maxBodyBytes = 1 << 20

// Mediator is the part of the mediation controller the API serves.
type Mediator interface {
	Interpret(ctx context.Context, req domain.InterpretRequest) domain.InterpretResult
	Cancel() bool
	Suggest(ctx context.Context, input string, cmdCtx domain.CommandContext) []domain.Suggestion
	RecordExecution(ctx context.Context, rec domain.HistoryRecord, cmdCtx domain.CommandContext) error
}

// RuleSet is the classifier surface the API serves.
type RuleSet interface {
	Rules() []domain.DangerousPattern
	Classify(command string) domain.SecurityVerdict
}

// Handler wires the routes to the mediator and classifier.
type Handler struct {
	mediator Mediator
	rules    RuleSet
	logger   ports.Logger
}

// NewRouter builds the gorilla/mux router for the API.
func NewRouter(mediator Mediator, rules RuleSet, log ports.Logger) *mux.Router {
	h := &Handler{mediator: mediator, rules: rules, logger: log}

	r := mux.NewRouter()
	r.Use(h.logRequests)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// Routes sit on the root router: a PathPrefix subrouter answers a method
	// mismatch with 404 instead of 405.
	r.HandleFunc("/v1/interpret", h.interpret).Methods(http.MethodPost)
	r.HandleFunc("/v1/interpret/cancel", h.cancel).Methods(http.MethodPost)
	r.HandleFunc("/v1/suggestions", h.suggestions).Methods(http.MethodGet)
	r.HandleFunc("/v1/executions", h.recordExecution).Methods(http.MethodPost)
	r.HandleFunc("/v1/rules", h.listRules).Methods(http.MethodGet)
	r.HandleFunc("/v1/classify", h.classify).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return r
}

type interpretBody struct {
	Input     string                `json:"input"`
	Context   domain.CommandContext `json:"context"`
	Model     string                `json:"model,omitempty"`
	TimeoutMS int                   `json:"timeout_ms,omitempty"`
}

func (h *Handler) interpret(w http.ResponseWriter, r *http.Request) {
	var body interpretBody
	if !decode(w, r, &body) {
		return
	}
	result := h.mediator.Interpret(r.Context(), domain.InterpretRequest{
		Input:   body.Input,
		Context: body.Context,
		Model:   body.Model,
		Timeout: time.Duration(body.TimeoutMS) * time.Millisecond,
	})
	writeJSON(w, statusFor(result), result)
}

// statusFor maps failure kinds onto HTTP statuses.
func statusFor(result domain.InterpretResult) int {
	if result.Failure == nil {
		return http.StatusOK
	}
	switch result.Failure.Kind {
	case domain.FailureValidation:
		return http.StatusUnprocessableEntity
	case domain.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) cancel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.mediator.Cancel()})
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmdCtx := domain.CommandContext{
		WorkingDir: q.Get("cwd"),
		OS:         q.Get("os"),
		Shell:      q.Get("shell"),
	}
	suggestions := h.mediator.Suggest(r.Context(), q.Get("q"), cmdCtx)
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

type executionBody struct {
	Record  domain.HistoryRecord  `json:"record"`
	Context domain.CommandContext `json:"context"`
}

func (h *Handler) recordExecution(w http.ResponseWriter, r *http.Request) {
	var body executionBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.mediator.RecordExecution(r.Context(), body.Record, body.Context); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		h.logger.Error("record execution failed", err, nil)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": h.rules.Rules()})
}

type classifyBody struct {
	Command string `json:"command"`
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var body classifyBody
	if !decode(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, h.rules.Classify(body.Command))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
