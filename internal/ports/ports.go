// Package ports defines the interfaces between the mediation core and its adapters.
//
// The application packages (mediation, suggest) depend only on these interfaces;
// the infrastructure layer supplies concrete implementations for reasoning
// backends, persistence, credentials and command transport.
package ports

import (
	"context"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// Backend is a reasoning service that turns sanitized natural language into a command.
// Implementations must honour ctx cancellation and report failures as *domain.BackendError
// (or errors wrapping the domain sentinels).
type Backend interface {
	Name() string
	Send(ctx context.Context, req domain.BackendRequest) (domain.BackendResponse, error)
}

// BackendFactory builds a Backend for a model definition.
type BackendFactory interface {
	ForModel(domain.ModelDefinition) (Backend, error)
}

// HistoryRepository persists interpreted commands.
type HistoryRepository interface {
	Append(ctx context.Context, record domain.HistoryRecord) error
	// Records returns newest-first entries; limit <= 0 means all, search filters input and command.
	Records(ctx context.Context, limit int, search string) ([]domain.HistoryRecord, error)
	Clear(ctx context.Context) error
	Path() string
}

// FavoritesRepository persists user-pinned commands.
type FavoritesRepository interface {
	Favorites(ctx context.Context) ([]domain.Favorite, error)
	Save(ctx context.Context, fav domain.Favorite) error
	Remove(ctx context.Context, name string) error
}

// CredentialStore resolves API keys by name (typically an env var name).
type CredentialStore interface {
	APIKey(ctx context.Context, name string) (string, error)
}

// CommandExecutor runs a vetted command on a named target.
type CommandExecutor interface {
	Execute(ctx context.Context, target string, command string) (domain.ExecutionResult, error)
}

// ContextCollector describes the local environment for CLI use.
type ContextCollector interface {
	Collect(ctx context.Context) (domain.CommandContext, error)
}

// AuditSink records interpret outcomes.
type AuditSink interface {
	Record(result domain.InterpretResult) error
}

// Logger provides structured logging abstraction for the application layer.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
