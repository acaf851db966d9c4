// Package mediation runs one natural-language request through the
// sanitize → backend → restore → classify pipeline and gates execution of the
// resulting command.
package mediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/shai-bridge/internal/application/suggest"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/redact"
	"github.com/doeshing/shai-bridge/internal/pkg/logger"
	"github.com/doeshing/shai-bridge/internal/ports"
)

var (
	// ErrCancelled is the abort cause for an explicit Cancel.
	ErrCancelled = errors.New("interpret cancelled")
	// ErrSuperseded is the abort cause when a newer Interpret replaces an outstanding one.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Classifier is the risk classification capability the controller needs.
type Classifier interface {
	Classify(command string) domain.SecurityVerdict
}

// BackendResolver picks a backend for an explicitly requested model name.
type BackendResolver func(model string) (ports.Backend, error)

// Deps are the collaborators of a Controller. Backend or Resolve must be set
// for Interpret to accept requests; the rest are optional.
type Deps struct {
	Backend    ports.Backend
	Resolve    BackendResolver
	Sanitizer  *redact.Sanitizer
	Classifier Classifier
	Ranker     *suggest.Ranker
	History    ports.HistoryRepository
	Executor   ports.CommandExecutor
	Audit      ports.AuditSink
	Logger     ports.Logger
}

// Options tunes a Controller. Zero values fall back to the config defaults.
type Options struct {
	Timeout       time.Duration
	HistoryTurns  int
	MaxTokens     int
	Temperature   float64
	DefaultTarget string
	// OnTransition observes every state change of every request.
	OnTransition func(requestID string, from, to domain.State)
	Now          func() time.Time
	NewID        func() string
}

// Controller allows at most one outstanding backend call; a new Interpret
// cancels the previous one before it starts.
type Controller struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	inflight *inflight
}

type inflight struct {
	id     string
	cancel context.CancelCauseFunc
}

// New builds a controller.
func New(deps Deps, opts Options) *Controller {
	if deps.Logger == nil {
		deps.Logger = logger.Nop{}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = redact.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(domain.DefaultTimeoutSeconds) * time.Second
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = domain.DefaultHistoryTurns
	}
	if opts.DefaultTarget == "" {
		opts.DefaultTarget = domain.LocalTargetName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{deps: deps, opts: opts}
}

// Interpret never returns a partially processed command: the result either
// reaches StateDone with a classified command or carries a Failure.
func (c *Controller) Interpret(ctx context.Context, req domain.InterpretRequest) domain.InterpretResult {
	start := c.opts.Now()
	result := domain.InterpretResult{
		RequestID: c.opts.NewID(),
		State:     domain.StateIdle,
		Input:     req.Input,
	}

	if strings.TrimSpace(req.Input) == "" {
		return c.reject(result, domain.ErrEmptyInput, start)
	}
	backend, err := c.backendFor(req.Model)
	if err != nil {
		return c.reject(result, err, start)
	}

	timeout := c.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx, release := c.begin(ctx, result.RequestID, timeout)
	defer release()

	c.transition(&result, domain.StateSanitizing)
	backendReq, mapping := c.sanitize(req)
	backendReq.Options = domain.BackendOptions{
		Timeout:     timeout,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}

	c.transition(&result, domain.StateAwaitingBackend)
	result.Backend = backend.Name()
	resp, err := c.await(callCtx, backend, backendReq)
	if err != nil {
		return c.fail(result, callCtx, err, timeout, start)
	}
	if strings.TrimSpace(resp.Command) == "" {
		return c.fail(result, callCtx, &domain.BackendError{
			Kind:    domain.FailureMalformedResponse,
			Message: "backend returned an empty command",
			Err:     domain.ErrMalformedResponse,
		}, timeout, start)
	}

	c.transition(&result, domain.StateRestoring)
	result.Command = strings.TrimSpace(redact.Restore(resp.Command, mapping))
	result.Explanation = redact.Restore(resp.Explanation, mapping)
	result.Confidence = clampConfidence(resp.Confidence)

	c.transition(&result, domain.StateClassifying)
	verdict := c.classify(result.Command)
	result.Verdict = &verdict
	result.Dangerous = verdict.Dangerous
	result.Severity = verdict.Severity
	result.RequiresConfirmation = verdict.RequiresConfirmation

	c.transition(&result, domain.StateDone)
	return c.finish(result, start)
}

// Cancel aborts the outstanding backend call, if any.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return false
	}
	c.inflight.cancel(ErrCancelled)
	c.inflight = nil
	return true
}

// Suggest delegates to the ranker.
func (c *Controller) Suggest(ctx context.Context, input string, cmdCtx domain.CommandContext) []domain.Suggestion {
	if c.deps.Ranker == nil {
		return []domain.Suggestion{}
	}
	return c.deps.Ranker.Suggest(ctx, input, cmdCtx)
}

// RecordExecution feeds the ranker and appends the record to history.
func (c *Controller) RecordExecution(ctx context.Context, rec domain.HistoryRecord, cmdCtx domain.CommandContext) error {
	if strings.TrimSpace(rec.Command) == "" {
		return fmt.Errorf("%w: record has no command", domain.ErrValidation)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.opts.Now()
	}
	if rec.Directory == "" {
		rec.Directory = cmdCtx.WorkingDir
	}
	if c.deps.Ranker != nil {
		c.deps.Ranker.RecordUsage(rec.Command, cmdCtx)
	}
	if c.deps.History == nil {
		return nil
	}
	if err := c.deps.History.Append(ctx, rec); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Execute hands a vetted command to the transport. Failed results are refused,
// and results requiring confirmation are refused unless approval confirms them.
func (c *Controller) Execute(ctx context.Context, result domain.InterpretResult, approval domain.Approval) (domain.ExecutionResult, error) {
	if !result.OK() || strings.TrimSpace(result.Command) == "" {
		return domain.ExecutionResult{}, domain.ErrNotExecutable
	}
	if result.RequiresConfirmation && !approval.Confirmed {
		return domain.ExecutionResult{}, domain.ErrConfirmationRequired
	}
	if c.deps.Executor == nil {
		return domain.ExecutionResult{}, errors.New("no command executor configured")
	}
	target := approval.Target
	if target == "" {
		target = c.opts.DefaultTarget
	}
	c.deps.Logger.Info("executing command", map[string]interface{}{
		"request_id": result.RequestID,
		"target":     target,
		"severity":   result.Severity.String(),
	})
	return c.deps.Executor.Execute(ctx, target, result.Command)
}

// HistoryRecordFor builds the history entry for an executed result.
func HistoryRecordFor(result domain.InterpretResult, exec domain.ExecutionResult, execErr error) domain.HistoryRecord {
	return domain.HistoryRecord{
		UserInput:       result.Input,
		Command:         result.Command,
		Target:          exec.Target,
		Model:           result.Backend,
		Executed:        exec.Ran,
		Success:         execErr == nil && exec.Ran && exec.ExitCode == 0,
		ExitCode:        exec.ExitCode,
		Severity:        result.Severity,
		ExecutionTimeMS: exec.Duration.Milliseconds(),
	}
}

func (c *Controller) backendFor(model string) (ports.Backend, error) {
	if model != "" && c.deps.Resolve != nil {
		backend, err := c.deps.Resolve(model)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return backend, nil
	}
	if c.deps.Backend != nil {
		return c.deps.Backend, nil
	}
	if c.deps.Resolve != nil {
		if backend, err := c.deps.Resolve(""); err == nil && backend != nil {
			return backend, nil
		}
	}
	return nil, domain.ErrNoBackend
}

// begin registers the new call, cancelling any outstanding one.
func (c *Controller) begin(parent context.Context, id string, timeout time.Duration) (context.Context, func()) {
	base, cancelCause := context.WithCancelCause(parent)
	callCtx, cancelTimeout := context.WithTimeout(base, timeout)

	c.mu.Lock()
	if prev := c.inflight; prev != nil {
		prev.cancel(ErrSuperseded)
		c.deps.Logger.Debug("superseding outstanding request", map[string]interface{}{
			"request_id": id,
			"superseded": prev.id,
		})
	}
	c.inflight = &inflight{id: id, cancel: cancelCause}
	c.mu.Unlock()

	return callCtx, func() {
		c.mu.Lock()
		if c.inflight != nil && c.inflight.id == id {
			c.inflight = nil
		}
		c.mu.Unlock()
		cancelTimeout()
		cancelCause(nil)
	}
}

// sanitize masks the input, the working directory, recent commands and the
// trailing conversation turns with one shared mapping.
func (c *Controller) sanitize(req domain.InterpretRequest) (domain.BackendRequest, redact.Mapping) {
	turns := req.Context.LastTurns(c.opts.HistoryTurns)
	texts := make([]string, 0, 2+len(req.Context.RecentCommands)+len(turns))
	texts = append(texts, req.Input, req.Context.WorkingDir)
	texts = append(texts, req.Context.RecentCommands...)
	for _, turn := range turns {
		texts = append(texts, turn.Content)
	}

	masked, mapping := c.deps.Sanitizer.SanitizeBatch(texts)

	sanitized := req.Context
	sanitized.WorkingDir = masked[1]
	offset := 2
	if n := len(req.Context.RecentCommands); n > 0 {
		sanitized.RecentCommands = append([]string(nil), masked[offset:offset+n]...)
		offset += n
	}
	sanitized.Conversation = make([]domain.ConversationTurn, len(turns))
	for i, turn := range turns {
		sanitized.Conversation[i] = domain.ConversationTurn{Role: turn.Role, Content: masked[offset+i]}
	}
	return domain.BackendRequest{Input: masked[0], Context: sanitized}, mapping
}

type backendOutcome struct {
	resp domain.BackendResponse
	err  error
}

// await runs the backend call in its own goroutine so an adapter that ignores
// ctx cannot hold the caller past cancellation.
func (c *Controller) await(ctx context.Context, backend ports.Backend, req domain.BackendRequest) (domain.BackendResponse, error) {
	done := make(chan backendOutcome, 1)
	go func() {
		resp, err := backend.Send(ctx, req)
		done <- backendOutcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if ctx.Err() != nil {
			return domain.BackendResponse{}, ctx.Err()
		}
		return out.resp, out.err
	case <-ctx.Done():
		return domain.BackendResponse{}, ctx.Err()
	}
}

func (c *Controller) fail(result domain.InterpretResult, callCtx context.Context, err error, timeout time.Duration, start time.Time) domain.InterpretResult {
	kind := domain.FailureKindOf(err)
	aborted := callCtx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || kind == domain.FailureTimeout

	if aborted {
		cause := context.Cause(callCtx)
		switch {
		case cause == nil:
			cause = err
		case errors.Is(cause, context.DeadlineExceeded):
			cause = fmt.Errorf("no response within %s", timeout)
		}
		result.Failure = domain.NewFailure(domain.FailureTimeout, fmt.Errorf("%w: %v", domain.ErrBackendTimeout, cause))
		c.transition(&result, domain.StateAborted)
	} else {
		result.Failure = domain.NewFailure(kind, err)
		c.transition(&result, domain.StateFailed)
	}
	c.deps.Logger.Warn("interpret failed", map[string]interface{}{
		"request_id": result.RequestID,
		"kind":       string(result.Failure.Kind),
		"backend":    result.Backend,
		"error":      result.Failure.Message,
	})
	return c.finish(result, start)
}

func (c *Controller) reject(result domain.InterpretResult, err error, start time.Time) domain.InterpretResult {
	result.Failure = domain.NewFailure(domain.FailureValidation, err)
	c.deps.Logger.Debug("interpret rejected", map[string]interface{}{
		"request_id": result.RequestID,
		"reason":     err.Error(),
	})
	return c.finish(result, start)
}

func (c *Controller) finish(result domain.InterpretResult, start time.Time) domain.InterpretResult {
	result.Elapsed = c.opts.Now().Sub(start)
	if c.deps.Audit != nil {
		if err := c.deps.Audit.Record(result); err != nil {
			c.deps.Logger.Error("audit record failed", err, map[string]interface{}{"request_id": result.RequestID})
		}
	}
	return result
}

func (c *Controller) classify(command string) domain.SecurityVerdict {
	if c.deps.Classifier == nil {
		// Without a rule registry nothing is vetted, so every command blocks.
		c.deps.Logger.Warn("no classifier configured; requiring confirmation", nil)
		return domain.SecurityVerdict{
			Dangerous:            true,
			Severity:             domain.SeverityCritical,
			Warnings:             []string{"command was not checked against any safety rules"},
			RequiresConfirmation: true,
		}
	}
	return c.deps.Classifier.Classify(command)
}

func (c *Controller) transition(result *domain.InterpretResult, to domain.State) {
	from := result.State
	result.State = to
	c.deps.Logger.Debug("interpret transition", map[string]interface{}{
		"request_id": result.RequestID,
		"from":       string(from),
		"to":         string(to),
	})
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(result.RequestID, from, to)
	}
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
