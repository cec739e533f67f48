package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/cache"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// GenerationSource reports a value that changes whenever a collection is rebuilt.
type GenerationSource interface {
	Generation(ctx context.Context, collection string) (string, error)
}

// Service answers a question for every registered candidate.
type Service struct {
	Assembler  *Assembler
	Generator  *Generator
	Parser     ResponseParser
	Cache      cache.Cache
	Collection string
	Candidates []string
	// Generations scopes cache keys to the current collection build. Without it
	// cached answers only go away through Purge or expiry.
	Generations GenerationSource
}

// NewService wires the query pipeline. A nil cache disables caching.
func NewService(a *Assembler, g *Generator, p ResponseParser, c cache.Cache, collection string, candidates []string) *Service {
	if p == nil {
		p = MarkerParser{}
	}
	if c == nil {
		c = cache.None{}
	}
	return &Service{
		Assembler:  a,
		Generator:  g,
		Parser:     p,
		Cache:      c,
		Collection: collection,
		Candidates: candidates,
	}
}

// Query retrieves context for each candidate, asks the model and parses the
// answer. Cached raw completions are re-parsed and reported with source=cache.
func (s *Service) Query(ctx context.Context, question string) (models.QueryResult, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return models.QueryResult{}, ErrEmptyQuestion
	}

	key, cacheable := s.cacheKey(ctx, q)
	if cacheable {
		if raw, found, err := s.Cache.Get(ctx, key); err != nil {
			log.Warn().Err(err).Msg("answer cache lookup failed")
		} else if found {
			log.Debug().Str("question", q).Msg("answer served from cache")
			return models.QueryResult{Question: question, Answers: s.Parser.Parse(raw), Source: models.SourceCache}, nil
		}
	}

	start := time.Now()
	contextText, err := s.Assembler.Assemble(ctx, q, s.Candidates)
	if err != nil {
		return models.QueryResult{}, err
	}
	retrieved := time.Since(start)

	raw, err := s.Generator.Generate(ctx, q, contextText)
	if err != nil {
		return models.QueryResult{}, err
	}

	answers := s.Parser.Parse(raw)
	log.Info().
		Int("candidates", len(s.Candidates)).
		Int("answers", len(answers)).
		Dur("retrieval", retrieved).
		Dur("dur", time.Since(start)).
		Msg("question answered")

	if cacheable {
		if err := s.Cache.Set(ctx, key, raw); err != nil {
			log.Warn().Err(err).Msg("answer cache store failed")
		}
	}

	return models.QueryResult{Question: question, Answers: answers, Source: models.SourceLLM}, nil
}

// cacheKey returns the answer cache key for q. The cache is bypassed when the
// collection generation cannot be read.
func (s *Service) cacheKey(ctx context.Context, q string) (string, bool) {
	var generation string
	if s.Generations != nil {
		g, err := s.Generations.Generation(ctx, s.Collection)
		if err != nil {
			log.Warn().Err(err).Msg("collection generation lookup failed, bypassing answer cache")
			return "", false
		}
		generation = g
	}
	return cache.Key(q, s.Collection, generation, s.Candidates), true
}
