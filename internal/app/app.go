// Package app wires configuration into the services every command needs.
package app

import (
	"context"
	"fmt"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/cache"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/indexer"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/rag"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/search"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/store"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config config.Specification
	Client ai.Client
	Store  *store.Store
	Cache  cache.Cache
	Search *search.Service
	RAG    *rag.Service
}

// New builds the AI client, the vector store, the answer cache and the query
// pipeline. The database pool connects lazily.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	log.Info().Str("provider", string(clientConfig.Provider)).Int("embedding_dim", client.Dim()).Msg("AI client initialized")

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	c, err := cache.New(ctx, cache.Config{Backend: cfg.Cache.Backend, URL: cfg.Cache.URL, TTL: cfg.Cache.TTL})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create answer cache: %w", err)
	}

	searchSvc := search.NewService(client, st, cfg.Collection)
	var parser rag.ResponseParser = rag.MarkerParser{}
	if cfg.JSONOutput {
		parser = rag.JSONParser{Fallback: rag.MarkerParser{}}
	}
	ragSvc := rag.NewService(
		rag.NewAssembler(searchSvc, cfg.TopK),
		rag.NewGenerator(client, cfg.JSONOutput),
		parser,
		c,
		cfg.Collection,
		cfg.Candidates.IDs(),
	)
	ragSvc.Generations = st

	return &App{
		Config: cfg,
		Client: client,
		Store:  st,
		Cache:  c,
		Search: searchSvc,
		RAG:    ragSvc,
	}, nil
}

// Migrate prepares the schema for the client's embedding dimension.
func (a *App) Migrate(ctx context.Context) error {
	dim := a.Client.Dim()
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be set")
	}
	return a.Store.Migrate(ctx, dim)
}

// Indexer returns an ingest pipeline sharing this app's client, store and cache.
func (a *App) Indexer() *indexer.Indexer {
	return indexer.New(a.Store, a.Client, a.Cache, a.Config)
}

func (a *App) Close() {
	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("close answer cache")
		}
	}
	a.Store.Close()
}
