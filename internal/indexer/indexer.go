package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/cache"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/chunker"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/loader"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/store"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// preflightText is embedded once before anything is deleted.
const preflightText = "test"

// DocumentLoader defines the interface for reading a candidate's sources
type DocumentLoader interface {
	Load(ctx context.Context, candidateID string, sources []string) ([]loader.Document, error)
}

// Indexer rebuilds the vector collection from the candidate registry.
type Indexer struct {
	Store      store.ChunkStore
	Client     ai.Embedder
	Loader     DocumentLoader
	Chunker    *chunker.Chunker
	Cache      cache.Cache
	Collection string
	Candidates config.CandidateList
	Workers    int
	Limiter    *rate.Limiter
}

// Stats summarizes one ingest run.
type Stats struct {
	Candidates   int            `json:"candidates"`
	Documents    int            `json:"documents"`
	Chunks       int            `json:"chunks"`
	PerCandidate map[string]int `json:"per_candidate"`
}

// New creates a new Indexer instance.
func New(s store.ChunkStore, client ai.Embedder, c cache.Cache, cfg config.Specification) *Indexer {
	var limiter *rate.Limiter
	if cfg.Ingest.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.RPS), 1)
	}
	return &Indexer{
		Store:      s,
		Client:     client,
		Loader:     loader.New(),
		Chunker:    chunker.New(chunker.Config{ChunkSize: cfg.Chunking.Size, ChunkOverlap: cfg.Chunking.Overlap}),
		Cache:      c,
		Collection: cfg.Collection,
		Candidates: cfg.Candidates,
		Workers:    cfg.Ingest.Workers,
		Limiter:    limiter,
	}
}

// Run loads every registered candidate's sources and replaces the collection.
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	return ix.rebuild(ctx, func(ctx context.Context) ([]loader.Document, error) {
		var docs []loader.Document
		for _, cand := range ix.Candidates {
			d, err := ix.Loader.Load(ctx, cand.ID, cand.Sources)
			if err != nil {
				return nil, err
			}
			docs = append(docs, d...)
		}
		return docs, nil
	})
}

// Ingest replaces the collection with one in-memory document per candidate.
func (ix *Indexer) Ingest(ctx context.Context, documents map[string]string) (Stats, error) {
	return ix.rebuild(ctx, func(ctx context.Context) ([]loader.Document, error) {
		ids := make([]string, 0, len(documents))
		for id := range documents {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		docs := make([]loader.Document, 0, len(ids))
		for _, id := range ids {
			docs = append(docs, loader.Document{
				CandidateID: id,
				Path:        "inline://" + id,
				Text:        loader.Normalize(documents[id]),
			})
		}
		return docs, nil
	})
}

func (ix *Indexer) rebuild(ctx context.Context, load func(context.Context) ([]loader.Document, error)) (Stats, error) {
	start := time.Now()

	release, err := ix.Store.AcquireIngestLock(ctx, ix.Collection)
	if err != nil {
		return Stats{}, fmt.Errorf("acquire ingest lock: %w", err)
	}
	defer release()

	// Fail before touching the collection if embeddings are not usable.
	if _, err := ix.Client.Embed(ctx, preflightText, ai.TaskDocument); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ai.ErrEmbeddingUnavailable, err)
	}

	docs, err := load(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Documents: len(docs), PerCandidate: map[string]int{}}
	var chunks []models.Chunk
	for _, d := range docs {
		if _, seen := stats.PerCandidate[d.CandidateID]; !seen {
			stats.PerCandidate[d.CandidateID] = 0
		}
		for _, c := range ix.Chunker.Split(d.Text, d.Path, d.CandidateID) {
			c.Collection = ix.Collection
			c.ID = store.ChunkID(ix.Collection, c.SourcePath, c.ChunkIndex)
			chunks = append(chunks, c)
			stats.PerCandidate[d.CandidateID]++
		}
		log.Info().Str("candidate", d.CandidateID).Str("source", d.Path).
			Int("chunks", stats.PerCandidate[d.CandidateID]).Msg("document chunked")
	}
	stats.Candidates = len(stats.PerCandidate)
	stats.Chunks = len(chunks)

	vecs, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return Stats{}, err
	}

	if err := ix.Store.ReplaceCollection(ctx, ix.Collection, chunks, vecs); err != nil {
		return Stats{}, fmt.Errorf("replace collection %s: %w", ix.Collection, err)
	}

	if ix.Cache != nil {
		if err := ix.Cache.Purge(ctx); err != nil {
			log.Warn().Err(err).Msg("purge answer cache")
		}
	}

	log.Info().Str("collection", ix.Collection).
		Int("candidates", stats.Candidates).
		Int("documents", stats.Documents).
		Int("chunks", stats.Chunks).
		Dur("dur", time.Since(start)).
		Msg("ingest complete")
	return stats, nil
}

// embedAll embeds every chunk with a bounded pool. The first failure cancels
// the remaining requests.
func (ix *Indexer) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	numWorkers := ix.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
		if numWorkers > 8 {
			numWorkers = 8 // Cap at 8 to avoid overwhelming the AI API
		}
	}
	log.Info().Int("workers", numWorkers).Int("chunks", len(chunks)).Msg("embedding chunks")

	vecs := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i := range chunks {
		g.Go(func() error {
			if ix.Limiter != nil {
				if err := ix.Limiter.Wait(gctx); err != nil {
					return err
				}
			}
			c := chunks[i]
			v, err := ix.Client.Embed(gctx, c.Text, ai.TaskDocument)
			if err != nil {
				return fmt.Errorf("embed %s#%d: %w", c.SourcePath, c.ChunkIndex, err)
			}
			if len(v) == 0 {
				return fmt.Errorf("embed %s#%d: %w", c.SourcePath, c.ChunkIndex, errEmptyVector)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

var errEmptyVector = errors.New("empty embedding")
