package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"supportbot/internal/completion"
	"supportbot/internal/config"
	"supportbot/internal/dialogue"
	"supportbot/internal/embedding"
	"supportbot/internal/embedding/openai"
	"supportbot/internal/embedding/tfidf"
	"supportbot/internal/escalation"
	"supportbot/internal/fallback"
	"supportbot/internal/logger"
	"supportbot/internal/prompt"
	"supportbot/internal/service"
	"supportbot/internal/session"
	"supportbot/internal/vectorstore"
	"supportbot/internal/vectorstore/memory"
	"supportbot/internal/vectorstore/qdrant"
)

const module = "cli"

// App holds the wired components shared by the commands.
type App struct {
	Config       *config.AppConfig
	Log          logger.ILogger
	Knowledge    *service.KnowledgeBase
	Orchestrator *dialogue.Orchestrator

	closers []func() error
}

// NewApp assembles the assistant from configuration.
func NewApp(cfg *config.AppConfig, log logger.ILogger) (*App, error) {
	emb, err := newEmbedder(cfg.Embedder, log)
	if err != nil {
		return nil, err
	}
	store, err := newVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	kb := service.NewKnowledgeBase(emb, embedding.Prefixer{
		Query:   cfg.Embedder.QueryPrefix,
		Passage: cfg.Embedder.PassagePrefix,
	}, store, cfg.Retrieval.TopK, log)

	apiKey := os.Getenv(cfg.Completion.APIKeyEnv)
	if apiKey == "" {
		log.Warn(module, "Completion API key not set", map[string]interface{}{"env": cfg.Completion.APIKeyEnv})
	}
	gw, err := completion.NewGateway(completion.Config{
		BaseURL:     cfg.Completion.BaseURL,
		APIKey:      apiKey,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		Timeout:     time.Duration(cfg.Completion.TimeoutSecs) * time.Second,
	}, completion.RetryPolicy{
		MaxAttempts: cfg.Completion.MaxAttempts,
		Delay:       time.Duration(cfg.Completion.RetryDelaySecs) * time.Second,
		Sleep:       completion.SleepContext,
	}, log)
	if err != nil {
		return nil, err
	}

	orch := dialogue.NewOrchestrator(
		kb,
		prompt.NewComposer(cfg.Assistant.Brand, cfg.Assistant.Description),
		gw,
		fallback.NewExtractor(gw, log),
		escalation.NewFileSink(cfg.Escalation.LogPath, log),
		log,
	)
	return &App{Config: cfg, Log: log, Knowledge: kb, Orchestrator: orch}, nil
}

// LoadKnowledge fills the vector store from the embedded chunk file written by ingest.
func (a *App) LoadKnowledge(ctx context.Context) error {
	path := a.Config.Knowledge.EmbeddedChunksPath
	n, err := a.Knowledge.Load(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no embedded knowledge at %s; run \"supportbot ingest\" first", path)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		a.Log.Warn(module, "Knowledge base is empty; every question will fall back", nil)
	}
	return nil
}

// SessionStore opens the configured session backend.
func (a *App) SessionStore(ctx context.Context) (session.Store, error) {
	ttl := time.Duration(a.Config.Session.TTLMinutes) * time.Minute
	switch a.Config.Session.Store {
	case "memory", "":
		return session.NewMemoryStore(ttl), nil
	case "redis":
		client := session.NewRedisClient(a.Config.Session.RedisURL)
		store := session.NewRedisStore(client, ttl)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store: %s", a.Config.Session.Store)
	}
}

// Close releases connections and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}

func newEmbedder(cfg config.EmbedderConfig, log logger.ILogger) (embedding.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Log:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newVectorStore(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
