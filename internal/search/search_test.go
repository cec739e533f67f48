package search

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/store"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockEmbedder implements the ai.Embedder interface for testing
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string, task ai.TaskType) ([]float32, error)
	DimFunc   func() int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text, task)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Dim() int {
	if m.DimFunc != nil {
		return m.DimFunc()
	}
	return 3
}

// MockSearcher implements store.ChunkSearcher for testing
type MockSearcher struct {
	SearchFunc func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error)
}

func (m *MockSearcher) Search(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, collection, vec, k, opt)
	}
	return []models.SearchResult{}, nil
}

func result(candidate, text string, score float64) models.SearchResult {
	return models.SearchResult{
		Chunk: models.Chunk{
			ID: text, Collection: "elecciones_candidates", CandidateID: candidate,
			SourcePath: "data/" + candidate + ".pdf", Text: text, CreatedAt: time.Now(),
		},
		Score: score,
	}
}

func TestService_Retrieve(t *testing.T) {
	tests := []struct {
		name           string
		question       string
		candidate      string
		k              int
		embedFunc      func(ctx context.Context, text string, task ai.TaskType) ([]float32, error)
		searchFunc     func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error)
		expected       []string
		expectedErrIs  error
		expectedErrMsg string
	}{
		{
			name:      "results keep store order",
			question:  "  ¿Qué propone sobre salud?  ",
			candidate: "Carolina_Toha",
			k:         3,
			embedFunc: func(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
				if text != "¿Qué propone sobre salud?" {
					t.Errorf("Expected trimmed question, got %q", text)
				}
				if task != ai.TaskQuery {
					t.Errorf("Expected task %q, got %q", ai.TaskQuery, task)
				}
				return []float32{0.5, 0.5}, nil
			},
			searchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
				if collection != "elecciones_candidates" {
					t.Errorf("Expected collection elecciones_candidates, got %q", collection)
				}
				if !reflect.DeepEqual(vec, []float32{0.5, 0.5}) {
					t.Errorf("Expected query vector to be forwarded, got %v", vec)
				}
				if k != 3 {
					t.Errorf("Expected k=3, got %d", k)
				}
				if opt.CandidateID != "Carolina_Toha" {
					t.Errorf("Expected candidate filter Carolina_Toha, got %q", opt.CandidateID)
				}
				return []models.SearchResult{
					result("Carolina_Toha", "Hospitales regionales", 0.9),
					result("Carolina_Toha", "Atención primaria", 0.7),
				}, nil
			},
			expected: []string{"Hospitales regionales", "Atención primaria"},
		},
		{
			name:      "zero k falls back to default",
			candidate: "Jaime_Mulet",
			k:         0,
			searchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
				if k != DefaultK {
					t.Errorf("Expected k=%d, got %d", DefaultK, k)
				}
				return []models.SearchResult{result("Jaime_Mulet", "Regiones", 0.8)}, nil
			},
			expected: []string{"Regiones"},
		},
		{
			name:      "no results yields sentinel",
			candidate: "Gonzalo_Winter",
			k:         5,
			expected:  []string{"No se encontraron datos de programa para Gonzalo_Winter."},
		},
		{
			name:      "blank chunks count as no results",
			candidate: "Jeanette_Jara",
			k:         5,
			searchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
				return []models.SearchResult{result("Jeanette_Jara", "   ", 0.1)}, nil
			},
			expected: []string{NoDataText("Jeanette_Jara")},
		},
		{
			name:      "embedding failure is unavailable",
			candidate: "Jaime_Mulet",
			embedFunc: func(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
				return nil, errors.New("invalid API key")
			},
			searchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
				t.Error("Search must not run when embedding fails")
				return nil, nil
			},
			expectedErrIs: ai.ErrEmbeddingUnavailable,
		},
		{
			name:      "store error propagates",
			candidate: "Jaime_Mulet",
			searchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
				return nil, errors.New("database connection failed")
			},
			expectedErrMsg: "database connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(
				&MockEmbedder{EmbedFunc: tt.embedFunc},
				&MockSearcher{SearchFunc: tt.searchFunc},
				"elecciones_candidates",
			)

			got, err := service.Retrieve(context.Background(), tt.question, tt.candidate, tt.k)

			if tt.expectedErrIs != nil || tt.expectedErrMsg != "" {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if tt.expectedErrIs != nil && !errors.Is(err, tt.expectedErrIs) {
					t.Errorf("Expected error wrapping %v, got %v", tt.expectedErrIs, err)
				}
				if tt.expectedErrMsg != "" && err.Error() != tt.expectedErrMsg {
					t.Errorf("Expected error %q, got %q", tt.expectedErrMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestService_Retrieve_NeverEmpty(t *testing.T) {
	service := NewService(&MockEmbedder{}, &MockSearcher{}, "c")
	for _, cand := range []string{"A", "B_C", "Nombre con espacios"} {
		got, err := service.Retrieve(context.Background(), "pregunta", cand, 5)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(got) != 1 || got[0] != NoDataText(cand) {
			t.Errorf("Expected sentinel for %q, got %v", cand, got)
		}
	}
}

func TestService_Query_ContextCancellation(t *testing.T) {
	mockStore := &MockSearcher{
		SearchFunc: func(ctx context.Context, collection string, vec []float32, k int, opt store.QueryOpts) ([]models.SearchResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				return []models.SearchResult{}, nil
			}
		},
	}

	service := NewService(&MockEmbedder{}, mockStore, "c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Query(ctx, "test query", 10, store.QueryOpts{})
	if err == nil {
		t.Error("Expected context cancellation error, got nil")
	} else if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
}

func TestNoDataText(t *testing.T) {
	if got := NoDataText("Jaime_Mulet"); got != "No se encontraron datos de programa para Jaime_Mulet." {
		t.Errorf("Unexpected sentinel %q", got)
	}
}
