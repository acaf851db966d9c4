package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// Router dispatches a command to the executor registered for its target name.
type Router struct {
	executors map[string]ports.CommandExecutor
}

// NewRouter creates a router with local registered under domain.LocalTargetName.
func NewRouter(local ports.CommandExecutor) *Router {
	r := &Router{executors: map[string]ports.CommandExecutor{}}
	if local != nil {
		r.executors[domain.LocalTargetName] = local
	}
	return r
}

// Register adds (or replaces) the executor for name.
func (r *Router) Register(name string, exec ports.CommandExecutor) {
	r.executors[name] = exec
}

// Targets lists registered target names.
func (r *Router) Targets() []string {
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements ports.CommandExecutor.
func (r *Router) Execute(ctx context.Context, target, command string) (domain.ExecutionResult, error) {
	if target == "" {
		target = domain.LocalTargetName
	}
	exec, ok := r.executors[target]
	if !ok {
		return domain.ExecutionResult{Target: target, Command: command}, fmt.Errorf("%w: %s", domain.ErrUnknownTarget, target)
	}
	return exec.Execute(ctx, target, command)
}

var _ ports.CommandExecutor = (*Router)(nil)
