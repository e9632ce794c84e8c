package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/cache"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/config"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/enhance"
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
	_ "github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm/providers" // Register providers
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/similarity"
)

// App wires the engine components from configuration. Every collaborator is
// constructed explicitly and injected; nothing is resolved from globals.
type App struct {
	Config       *config.Config
	Engine       *similarity.Engine
	Store        cache.Store
	Orchestrator *enhance.Orchestrator

	natsConn *nats.Conn
	logger   *slog.Logger
}

// NewApp builds the component stack for a run.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, logger: logger}
	app.Engine = newSimilarityEngine(cfg, logger)

	completer, err := llm.NewHTTPCompleter(
		cfg.Provider.Name, cfg.Provider.Endpoint, cfg.Provider.Model,
		llm.WithCallTimeout(cfg.Provider.Timeout),
		llm.WithHTTPLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	retryCfg := llm.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.Retry.MaxRetries
	retryCfg.OutputShrink = cfg.Retry.OutputShrink
	retryCfg.CardinalityShrink = cfg.Retry.CardinalityShrink
	retryCfg.NearLimitRatio = cfg.Retry.NearLimitRatio
	retryCfg.BackoffBase = cfg.Retry.BackoffBase
	client := llm.NewRetryClient(completer,
		llm.WithRetryConfig(retryCfg),
		llm.WithLogger(logger))

	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = store

	selector := enhance.NewSelector(client, app.Engine,
		enhance.WithThreshold(cfg.Similarity.Threshold),
		enhance.WithMaxCandidates(cfg.Similarity.MaxCandidates),
		enhance.WithSelectionOutputTokens(cfg.Run.SelectionOutputTokens),
		enhance.WithSelectorLogger(logger))
	annotator := enhance.NewAnnotator(client,
		enhance.WithAnnotationOutputTokens(cfg.Run.AnnotationOutputTokens),
		enhance.WithAnnotatorLogger(logger))

	app.Orchestrator = enhance.NewOrchestrator(selector, annotator, store,
		enhance.WithConfigDigest(cfg.Digest()),
		enhance.WithWorkers(cfg.Run.Workers),
		enhance.WithOrchestratorLogger(logger))

	return app, nil
}

// newSimilarityEngine builds the similarity engine with the embedding tiers
// the configuration enables. Every command that scores relatedness must use
// this, so inspection commands see the same tiers a run does.
func newSimilarityEngine(cfg *config.Config, logger *slog.Logger) *similarity.Engine {
	opts := []similarity.Option{similarity.WithLogger(logger)}
	if cfg.Similarity.RemoteEndpoint != "" {
		opts = append(opts, similarity.WithRemoteEmbedder(
			similarity.NewRemoteEmbedder(cfg.Similarity.RemoteEndpoint, "", cfg.Similarity.RemoteModel)))
	}
	if cfg.Similarity.LocalEndpoint != "" {
		opts = append(opts, similarity.WithLocalEmbedder(
			similarity.NewLocalEmbedder(cfg.Similarity.LocalEndpoint, cfg.Similarity.LocalModel)))
	}
	return similarity.NewEngine(opts...)
}

// openStore constructs the configured cache backend.
func (a *App) openStore(ctx context.Context) (cache.Store, error) {
	switch a.Config.Cache.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(a.Config.Cache.Path)
	case "nats":
		conn, err := nats.Connect(a.Config.Cache.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		return cache.NewNATSKVStore(ctx, js, a.Config.Cache.Bucket)
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", a.Config.Cache.Backend)
	}
}

// Close releases the cache and any NATS connection.
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	return err
}
