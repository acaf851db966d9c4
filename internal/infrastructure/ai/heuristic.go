package ai

import (
	"context"
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const heuristicConfidence = 0.3

type heuristicBackend struct{}

// NewHeuristicBackend returns the offline keyword backend used when no model is reachable.
func NewHeuristicBackend() ports.Backend {
	return heuristicBackend{}
}

func (heuristicBackend) Name() string {
	return ProviderHeuristic
}

func (heuristicBackend) Send(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.BackendResponse{}, err
	}
	command, ok := guessCommand(req.Input)
	if !ok {
		return domain.BackendResponse{}, &domain.BackendError{
			Kind:    domain.FailureMalformedResponse,
			Message: "offline backend has no suggestion for this request",
			Err:     domain.ErrMalformedResponse,
		}
	}
	return domain.BackendResponse{
		Command:     command,
		Explanation: "Offline keyword match",
		Confidence:  heuristicConfidence,
	}, nil
}

func guessCommand(input string) (string, bool) {
	prompt := strings.ToLower(input)
	switch {
	case strings.Contains(prompt, "docker"):
		return "docker ps", true
	case strings.Contains(prompt, "git status"):
		return "git status", true
	case strings.Contains(prompt, "git log"), strings.Contains(prompt, "commits"):
		return "git log --oneline -n 20", true
	case strings.Contains(prompt, "disk"):
		return "df -h", true
	case strings.Contains(prompt, "memory"):
		return "free -h", true
	case strings.Contains(prompt, "kubernetes") || strings.Contains(prompt, "pod"):
		return "kubectl get pods", true
	case strings.Contains(prompt, "list") && strings.Contains(prompt, "file"):
		return "ls -la", true
	default:
		return "", false
	}
}
