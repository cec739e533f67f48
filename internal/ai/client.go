package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrEmbeddingUnavailable means the embedding provider could not be reached or refused the credentials.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrGenerationFailed means the language model call failed or timed out.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// TaskType tells the provider whether a text is being indexed or searched for.
type TaskType string

const (
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskQuery    TaskType = "RETRIEVAL_QUERY"
)

// Embedder turns text into vectors. The same model must serve ingest and query.
type Embedder interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
	Dim() int
}

// Completer runs one single-turn completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client provides both embedding and completion capabilities
type Client interface {
	Embedder
	Completer
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderGemini   Provider = "gemini"
	ProviderVertexAI Provider = "vertexai"
	ProviderOpenAI   Provider = "openai"
	ProviderStub     Provider = "stub"
)

// ParseProvider maps a configured provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		return ProviderGemini, nil
	case "vertexai", "vertex":
		return ProviderVertexAI, nil
	case "openai":
		return ProviderOpenAI, nil
	case "stub", "":
		return ProviderStub, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", name)
	}
}

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Dim         int
	ProjectID   string
	Location    string
	BaseURL     string
	Temperature float32
	// JSONOutput asks the provider for a schema-constrained JSON answer instead of marker text.
	JSONOutput bool
	Provider   Provider
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderGemini, ProviderVertexAI:
		return NewGeminiClient(ctx, config)
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is an offline Client: feature-hashed embeddings and an echoing completer.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 256
	}
	return &StubClient{dim: dim}
}

// Embed hashes lowercased words into buckets and L2-normalizes, so texts that
// share words end up close under cosine distance.
func (s *StubClient) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	vec := make([]float32, s.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		vec[bucket(w, s.dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

var stubBlockRe = regexp.MustCompile(`(?m)^\*\*Información de ([^:\n]+):\*\*\s*$`)

// bucket maps a word to a vector index. The modulo stays unsigned so hashes
// above MaxInt32 cannot go negative where int is 32 bits.
func bucket(word string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return int(h.Sum32() % uint32(dim))
}

// Complete answers with one marker line per context block found in the prompt.
func (s *StubClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	names := stubBlockRe.FindAllStringSubmatch(prompt, -1)
	if len(names) == 0 {
		return "No se encontró información relevante para ningún candidato sobre este tema.", nil
	}
	var b strings.Builder
	for i, m := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Candidato %s: Respuesta de prueba basada en el contexto disponible.", strings.TrimSpace(m[1]))
	}
	return b.String(), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
