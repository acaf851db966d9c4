package mediation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/shai-bridge/internal/application/suggest"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/security"
	"github.com/doeshing/shai-bridge/internal/pkg/logger"
	"github.com/doeshing/shai-bridge/internal/ports"
)

type stubBackend struct {
	mu      sync.Mutex
	reqs    []domain.BackendRequest
	respond func(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error)
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Send(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	return b.respond(ctx, req)
}

func (b *stubBackend) lastRequest() domain.BackendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reqs[len(b.reqs)-1]
}

func reply(command, explanation string) func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
	return func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
		return domain.BackendResponse{Command: command, Explanation: explanation, Confidence: 0.9}, nil
	}
}

type stubExecutor struct {
	calls []string
}

func (e *stubExecutor) Execute(_ context.Context, target, command string) (domain.ExecutionResult, error) {
	e.calls = append(e.calls, target+": "+command)
	return domain.ExecutionResult{Target: target, Command: command, Ran: true}, nil
}

type memHistory struct {
	records []domain.HistoryRecord
}

func (m *memHistory) Append(_ context.Context, rec domain.HistoryRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistory) Records(context.Context, int, string) ([]domain.HistoryRecord, error) {
	return m.records, nil
}

func (m *memHistory) Clear(context.Context) error { return nil }
func (m *memHistory) Path() string               { return "memory" }

type transitions struct {
	mu    sync.Mutex
	steps []domain.State
}

func (t *transitions) observe(_ string, _, to domain.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, to)
}

func (t *transitions) list() []domain.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.State(nil), t.steps...)
}

func newController(backend *stubBackend, opts Options) (*Controller, *transitions) {
	seen := &transitions{}
	opts.OnTransition = seen.observe
	deps := Deps{
		Classifier: security.NewClassifier(logger.Nop{}),
		Logger:     logger.Nop{},
	}
	if backend != nil {
		deps.Backend = backend
	}
	return New(deps, opts), seen
}

func TestInterpretMasksSensitiveDataAndRestoresCommand(t *testing.T) {
	backend := &stubBackend{respond: func(_ context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
		return domain.BackendResponse{
			Command:     "sshpass -p '<SECRET_1>' ssh admin@<IP_1>",
			Explanation: "Connects to <IP_1> using the supplied password",
			Confidence:  0.8,
		}, nil
	}}
	c, seen := newController(backend, Options{})

	res := c.Interpret(context.Background(), domain.InterpretRequest{
		Input: "ssh into 192.168.1.50 with password=hunter2",
	})

	require.True(t, res.OK(), "failure: %+v", res.Failure)
	sent := backend.lastRequest()
	assert.NotContains(t, sent.Input, "192.168.1.50")
	assert.NotContains(t, sent.Input, "hunter2")
	assert.Contains(t, sent.Input, "<IP_1>")
	assert.Contains(t, sent.Input, "<SECRET_1>")

	assert.Equal(t, "sshpass -p 'hunter2' ssh admin@192.168.1.50", res.Command)
	assert.Equal(t, "Connects to 192.168.1.50 using the supplied password", res.Explanation)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, "stub", res.Backend)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, []domain.State{
		domain.StateSanitizing,
		domain.StateAwaitingBackend,
		domain.StateRestoring,
		domain.StateClassifying,
		domain.StateDone,
	}, seen.list())
}

func TestInterpretClassifiesDangerousCommand(t *testing.T) {
	backend := &stubBackend{respond: reply("rm -rf /var/www", "Deletes the web root")}
	c, _ := newController(backend, Options{})

	res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "wipe the website"})

	require.True(t, res.OK())
	assert.True(t, res.Dangerous)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	assert.True(t, res.RequiresConfirmation)
	require.NotNil(t, res.Verdict)
	assert.Contains(t, res.Verdict.MatchedIDs(), security.RuleRecursiveForceDelete)
}

func TestInterpretValidation(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		backend := &stubBackend{respond: reply("ls", "")}
		c, seen := newController(backend, Options{})

		res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "   "})

		require.NotNil(t, res.Failure)
		assert.Equal(t, domain.FailureValidation, res.Failure.Kind)
		assert.ErrorIs(t, res.Err(), domain.ErrEmptyInput)
		assert.ErrorIs(t, res.Err(), domain.ErrValidation)
		assert.Equal(t, domain.StateIdle, res.State)
		assert.Empty(t, seen.list())
		assert.Empty(t, backend.reqs)
	})

	t.Run("no backend", func(t *testing.T) {
		c, seen := newController(nil, Options{})

		res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})

		require.NotNil(t, res.Failure)
		assert.Equal(t, domain.FailureValidation, res.Failure.Kind)
		assert.ErrorIs(t, res.Err(), domain.ErrNoBackend)
		assert.Empty(t, seen.list())
	})

	t.Run("unknown model", func(t *testing.T) {
		c := New(Deps{Resolve: func(model string) (ports.Backend, error) {
			return nil, errors.New("model " + model + " not configured")
		}}, Options{})

		res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files", Model: "gpt-x"})

		require.NotNil(t, res.Failure)
		assert.Equal(t, domain.FailureValidation, res.Failure.Kind)
		assert.Contains(t, res.Failure.Message, "gpt-x")
	})
}

func TestInterpretTimeoutAborts(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	// Ignores ctx entirely; the controller must still return on time.
	backend := &stubBackend{respond: func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
		<-release
		return domain.BackendResponse{Command: "ls"}, nil
	}}
	c, seen := newController(backend, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.StateAborted, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.FailureTimeout, res.Failure.Kind)
	assert.ErrorIs(t, res.Err(), domain.ErrBackendTimeout)
	assert.Empty(t, res.Command)
	assert.Equal(t, domain.StateAborted, seen.list()[len(seen.list())-1])
}

func TestCancelAbortsOutstandingCall(t *testing.T) {
	started := make(chan struct{})
	backend := &stubBackend{respond: func(ctx context.Context, _ domain.BackendRequest) (domain.BackendResponse, error) {
		close(started)
		<-ctx.Done()
		return domain.BackendResponse{}, ctx.Err()
	}}
	c, _ := newController(backend, Options{})

	assert.False(t, c.Cancel())

	done := make(chan domain.InterpretResult, 1)
	go func() {
		done <- c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})
	}()
	<-started
	assert.True(t, c.Cancel())

	select {
	case res := <-done:
		assert.Equal(t, domain.StateAborted, res.State)
		require.NotNil(t, res.Failure)
		assert.Equal(t, domain.FailureTimeout, res.Failure.Kind)
		assert.Contains(t, res.Failure.Message, ErrCancelled.Error())
		assert.Empty(t, res.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("Interpret did not return after Cancel")
	}
	assert.False(t, c.Cancel())
}

func TestNewInterpretSupersedesOutstandingCall(t *testing.T) {
	started := make(chan struct{})
	backend := &stubBackend{respond: func(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
		if req.Input == "slow request" {
			close(started)
			<-ctx.Done()
			return domain.BackendResponse{}, ctx.Err()
		}
		return domain.BackendResponse{Command: "uptime"}, nil
	}}
	c, _ := newController(backend, Options{})

	first := make(chan domain.InterpretResult, 1)
	go func() {
		first <- c.Interpret(context.Background(), domain.InterpretRequest{Input: "slow request"})
	}()
	<-started

	second := c.Interpret(context.Background(), domain.InterpretRequest{Input: "how long has it been up"})
	assert.True(t, second.OK())
	assert.Equal(t, "uptime", second.Command)

	select {
	case res := <-first:
		assert.Equal(t, domain.StateAborted, res.State)
		assert.Contains(t, res.Failure.Message, ErrSuperseded.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.False(t, c.Cancel())
}

func TestBackendFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     domain.FailureKind
		sentinel error
	}{
		{"credential", &domain.BackendError{Kind: domain.FailureInvalidCredential, StatusCode: 401}, domain.FailureInvalidCredential, domain.ErrInvalidCredential},
		{"quota", &domain.BackendError{Kind: domain.FailureQuotaExceeded, StatusCode: 429}, domain.FailureQuotaExceeded, domain.ErrQuotaExceeded},
		{"malformed", &domain.BackendError{Kind: domain.FailureMalformedResponse, Message: "not json"}, domain.FailureMalformedResponse, domain.ErrMalformedResponse},
		{"other", errors.New("connection refused"), domain.FailureBackend, domain.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{respond: func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
				return domain.BackendResponse{}, tt.err
			}}
			c, _ := newController(backend, Options{})

			res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})

			assert.Equal(t, domain.StateFailed, res.State)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.ErrorIs(t, res.Err(), tt.sentinel)
			assert.Empty(t, res.Command)
		})
	}
}

func TestBackendTimeoutErrorAborts(t *testing.T) {
	backend := &stubBackend{respond: func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
		return domain.BackendResponse{}, &domain.BackendError{Kind: domain.FailureTimeout, Message: "read timeout"}
	}}
	c, _ := newController(backend, Options{})

	res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})

	assert.Equal(t, domain.StateAborted, res.State)
	assert.Equal(t, domain.FailureTimeout, res.Failure.Kind)
}

func TestEmptyBackendCommandIsMalformed(t *testing.T) {
	backend := &stubBackend{respond: reply("  ", "nothing")}
	c, _ := newController(backend, Options{})

	res := c.Interpret(context.Background(), domain.InterpretRequest{Input: "list files"})

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, domain.FailureMalformedResponse, res.Failure.Kind)
}

func TestInterpretSanitizesConversationWindow(t *testing.T) {
	backend := &stubBackend{respond: reply("ls <FILE_1>", "")}
	c, _ := newController(backend, Options{HistoryTurns: 3})

	var turns []domain.ConversationTurn
	for i := 0; i < 5; i++ {
		turns = append(turns, domain.ConversationTurn{Role: domain.RoleUser, Content: "earlier turn"})
	}
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleAssistant, Content: "connected to 10.1.2.3"})

	res := c.Interpret(context.Background(), domain.InterpretRequest{
		Input: "list it",
		Context: domain.CommandContext{
			WorkingDir:   "/home/alice/project",
			Conversation: turns,
		},
	})

	require.True(t, res.OK())
	sent := backend.lastRequest()
	require.Len(t, sent.Context.Conversation, 3)
	assert.Equal(t, "connected to <IP_1>", sent.Context.Conversation[2].Content)
	assert.Equal(t, "<FILE_1>", sent.Context.WorkingDir)
	assert.Equal(t, "ls /home/alice/project", res.Command)
}

func TestExecuteGating(t *testing.T) {
	exec := &stubExecutor{}
	backend := &stubBackend{respond: func(_ context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
		if strings.Contains(req.Input, "wipe") {
			return domain.BackendResponse{Command: "rm -rf /var/www"}, nil
		}
		return domain.BackendResponse{Command: "ls -la"}, nil
	}}
	c := New(Deps{
		Backend:    backend,
		Classifier: security.NewClassifier(logger.Nop{}),
		Executor:   exec,
	}, Options{})
	ctx := context.Background()

	dangerous := c.Interpret(ctx, domain.InterpretRequest{Input: "wipe the site"})
	_, err := c.Execute(ctx, dangerous, domain.Approval{})
	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	assert.Empty(t, exec.calls)

	out, err := c.Execute(ctx, dangerous, domain.Approval{Confirmed: true, Target: "web-1"})
	require.NoError(t, err)
	assert.True(t, out.Ran)
	assert.Equal(t, []string{"web-1: rm -rf /var/www"}, exec.calls)

	safe := c.Interpret(ctx, domain.InterpretRequest{Input: "list files"})
	_, err = c.Execute(ctx, safe, domain.Approval{})
	require.NoError(t, err)
	assert.Equal(t, "local: ls -la", exec.calls[1])

	failed := c.Interpret(ctx, domain.InterpretRequest{Input: ""})
	_, err = c.Execute(ctx, failed, domain.Approval{Confirmed: true})
	assert.ErrorIs(t, err, domain.ErrNotExecutable)
}

func TestMissingClassifierFailsClosed(t *testing.T) {
	exec := &stubExecutor{}
	backend := &stubBackend{respond: func(context.Context, domain.BackendRequest) (domain.BackendResponse, error) {
		return domain.BackendResponse{Command: "rm -rf /"}, nil
	}}
	c := New(Deps{Backend: backend, Executor: exec}, Options{})
	ctx := context.Background()

	res := c.Interpret(ctx, domain.InterpretRequest{Input: "clean up"})

	require.Nil(t, res.Failure)
	assert.True(t, res.Dangerous)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	_, err := c.Execute(ctx, res, domain.Approval{})
	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	assert.Empty(t, exec.calls)
}

func TestRecordExecutionFeedsHistoryAndRanker(t *testing.T) {
	history := &memHistory{}
	ranker := suggest.NewRanker(history, nil, logger.Nop{}, suggest.Options{})
	c := New(Deps{History: history, Ranker: ranker}, Options{})
	cmdCtx := domain.CommandContext{WorkingDir: "/srv/app"}

	res := domain.InterpretResult{State: domain.StateDone, Input: "show disk", Command: "df -h", Backend: "stub"}
	rec := HistoryRecordFor(res, domain.ExecutionResult{Target: "local", Ran: true, Duration: 20 * time.Millisecond}, nil)
	require.NoError(t, c.RecordExecution(context.Background(), rec, cmdCtx))

	require.Len(t, history.records, 1)
	stored := history.records[0]
	assert.Equal(t, "/srv/app", stored.Directory)
	assert.True(t, stored.Success)
	assert.Equal(t, int64(20), stored.ExecutionTimeMS)
	assert.False(t, stored.Timestamp.IsZero())

	got := c.Suggest(context.Background(), "df", cmdCtx)
	require.NotEmpty(t, got)
	assert.Equal(t, "df -h", got[0].Command)

	assert.ErrorIs(t, c.RecordExecution(context.Background(), domain.HistoryRecord{}, cmdCtx), domain.ErrValidation)
}

func TestSuggestWithoutRanker(t *testing.T) {
	c := New(Deps{}, Options{})
	assert.Empty(t, c.Suggest(context.Background(), "ls", domain.CommandContext{}))
}
