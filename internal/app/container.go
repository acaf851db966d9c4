package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/doeshing/shai-bridge/internal/application/doctor"
	"github.com/doeshing/shai-bridge/internal/application/mediation"
	"github.com/doeshing/shai-bridge/internal/application/suggest"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/ai"
	"github.com/doeshing/shai-bridge/internal/infrastructure/audit"
	"github.com/doeshing/shai-bridge/internal/infrastructure/config"
	contextcollector "github.com/doeshing/shai-bridge/internal/infrastructure/context"
	"github.com/doeshing/shai-bridge/internal/infrastructure/credentials"
	"github.com/doeshing/shai-bridge/internal/infrastructure/executor"
	"github.com/doeshing/shai-bridge/internal/infrastructure/favorites"
	"github.com/doeshing/shai-bridge/internal/infrastructure/history"
	"github.com/doeshing/shai-bridge/internal/infrastructure/redact"
	"github.com/doeshing/shai-bridge/internal/infrastructure/security"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/pkg/logger"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// Options controls how the container is built.
type Options struct {
	Verbose    bool
	ConfigPath string
	// LogOutput defaults to stderr.
	LogOutput io.Writer
	// OnTransition is forwarded to the mediation controller.
	OnTransition func(requestID string, from, to domain.State)
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config       domain.Config
	ConfigLoader *config.FileLoader
	Logger       ports.Logger

	Sanitizer  *redact.Sanitizer
	Classifier *security.Classifier
	Backends   *ai.Factory

	HistoryStore   ports.HistoryRepository
	FavoritesStore *favorites.YAMLStore
	KeyStore       *credentials.AgeStore
	Credentials    ports.CredentialStore

	Ranker    *suggest.Ranker
	Executor  *executor.Router
	Collector *contextcollector.BasicCollector
	Audit     *audit.Logger

	Controller    *mediation.Controller
	DoctorService *doctor.Service
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	log := logger.New(logOut, opts.Verbose)

	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	categories, err := redact.ParseCategories(cfg.Sanitizer.Categories)
	if err != nil {
		return nil, fmt.Errorf("sanitizer: %w", err)
	}
	sanitizer := redact.New(categories...)

	classifier, err := security.LoadClassifier(cfg.Security.RulesFile, log)
	if err != nil {
		return nil, fmt.Errorf("security rules %s: %w", cfg.Security.RulesFile, err)
	}

	historyStore, err := history.Open(cfg.History.Backend, cfg.History.Path, log)
	if err != nil {
		return nil, err
	}
	favoritesStore := favorites.NewYAMLStore(filesystem.ExpandPath(cfg.Favorites.Path, favorites.DefaultPath()))

	keyStore := credentials.NewAgeStore(
		filesystem.ExpandPath(cfg.Credentials.KeyFile, credentials.DefaultKeyFile()),
		credentials.EnvOrPrompt(os.Stdin, os.Stderr),
	)
	creds := credentials.ChainStore{credentials.NewEnvStore(), keyStore}
	backends := ai.NewFactory(creds)

	ranker := suggest.NewRanker(historyStore, favoritesStore, log, suggest.Options{
		CacheTTL:     cfg.GetSuggestionCacheTTL(),
		Budget:       cfg.GetSuggestionBudget(),
		CacheEntries: cfg.GetSuggestionCacheEntries(),
	})
	if err := ranker.Warm(ctx); err != nil {
		log.Warn("suggestion warm-up failed", map[string]interface{}{"error": err.Error()})
	}

	router := executor.NewRouter(executor.NewLocalExecutor(cfg.GetExecutionShell()))
	for _, target := range cfg.Targets {
		remote, err := executor.NewSSHExecutor(target)
		if err != nil {
			log.Warn("target disabled", map[string]interface{}{
				"target": target.Name,
				"error":  err.Error(),
			})
			continue
		}
		router.Register(target.Name, remote)
	}

	var auditLog *audit.Logger
	var auditSink ports.AuditSink
	if cfg.Audit.Enabled {
		auditLog, err = audit.New(filesystem.ExpandPath(cfg.Audit.Path, filesystem.AppPath("audit.jsonl")))
		if err != nil {
			return nil, err
		}
		auditSink = auditLog
	}

	controller := mediation.New(mediation.Deps{
		Resolve:    resolver(cfg, backends),
		Sanitizer:  sanitizer,
		Classifier: classifier,
		Ranker:     ranker,
		History:    historyStore,
		Executor:   router,
		Audit:      auditSink,
		Logger:     log,
	}, mediation.Options{
		Timeout:       cfg.GetTimeout(),
		HistoryTurns:  cfg.GetHistoryTurns(),
		MaxTokens:     cfg.Preferences.MaxTokens,
		Temperature:   cfg.Preferences.Temperature,
		DefaultTarget: cfg.GetDefaultTarget(),
		OnTransition:  opts.OnTransition,
	})

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		Rules:          classifier,
		Backends:       backends,
		Credentials:    creds,
		History:        historyStore,
		Suggestions:    ranker,
	}

	return &Container{
		Config:         cfg,
		ConfigLoader:   cfgLoader,
		Logger:         log,
		Sanitizer:      sanitizer,
		Classifier:     classifier,
		Backends:       backends,
		HistoryStore:   historyStore,
		FavoritesStore: favoritesStore,
		KeyStore:       keyStore,
		Credentials:    creds,
		Ranker:         ranker,
		Executor:       router,
		Collector:      contextcollector.NewBasicCollector(historyStore, contextcollector.DefaultRecentCommands),
		Audit:          auditLog,
		Controller:     controller,
		DoctorService:  doctorService,
	}, nil
}

// Close releases file handles held by the stores.
func (c *Container) Close() error {
	var errs []error
	if closer, ok := c.HistoryStore.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if c.Audit != nil {
		errs = append(errs, c.Audit.Close())
	}
	return errors.Join(errs...)
}

// resolver maps a requested model name onto a backend. Offline mode pins the
// heuristic backend regardless of the name.
func resolver(cfg domain.Config, factory ports.BackendFactory) mediation.BackendResolver {
	return func(name string) (ports.Backend, error) {
		if cfg.Preferences.Offline {
			return ai.NewHeuristicBackend(), nil
		}
		model, err := cfg.ResolveModel(name)
		if err != nil {
			return nil, err
		}
		return factory.ForModel(model)
	}
}
