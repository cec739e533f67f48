package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/store"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultK is the number of chunks retrieved per candidate.
const DefaultK = 5

// NoDataText is what a candidate's context holds when nothing was retrieved for them.
func NoDataText(candidateID string) string {
	return "No se encontraron datos de programa para " + candidateID + "."
}

type Service struct {
	Client     ai.Embedder
	Store      store.ChunkSearcher
	Collection string
}

// NewService creates a new retrieval service over one collection
func NewService(client ai.Embedder, store store.ChunkSearcher, collection string) *Service {
	return &Service{
		Client:     client,
		Store:      store,
		Collection: collection,
	}
}

// Query embeds q and returns the nearest chunks, optionally filtered to one candidate.
func (s *Service) Query(ctx context.Context, q string, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
	q = strings.TrimSpace(q)
	if k <= 0 {
		k = DefaultK
	}

	vec, err := s.Client.Embed(ctx, q, ai.TaskQuery)
	if err != nil {
		log.Error().Err(err).Str("candidate", opt.CandidateID).Msg("query embedding failed")
		return nil, fmt.Errorf("%w: %w", ai.ErrEmbeddingUnavailable, err)
	}

	return s.Store.Search(ctx, s.Collection, vec, k, opt)
}

// Retrieve returns the text of the k chunks of candidateID most similar to the
// question. It never returns an empty slice: with no matches the single entry is
// NoDataText.
func (s *Service) Retrieve(ctx context.Context, question, candidateID string, k int) ([]string, error) {
	res, err := s.Query(ctx, question, k, store.QueryOpts{CandidateID: candidateID})
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(res))
	for _, r := range res {
		if strings.TrimSpace(r.Chunk.Text) == "" {
			continue
		}
		texts = append(texts, r.Chunk.Text)
	}
	if len(texts) == 0 {
		log.Debug().Str("candidate", candidateID).Msg("no chunks retrieved")
		return []string{NoDataText(candidateID)}, nil
	}
	return texts, nil
}
