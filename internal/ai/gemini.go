package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient talks to Gemini either through the Gemini API (API key) or Vertex AI.
type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

// ModelInfo describes a model the provider exposes.
type ModelInfo struct {
	Name        string
	Description string
	Actions     []string
}

// NewGeminiClient creates a new client for the Google Gemini API.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.EmbedModel == "" {
		config.EmbedModel = "gemini-embedding-001"
	}
	if config.ChatModel == "" {
		config.ChatModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}

	cc := genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if config.Provider == ProviderVertexAI {
		cc.Backend = genai.BackendVertexAI
		if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
			config.Location = "us-central1"
		}
		if strings.TrimSpace(config.ProjectID) != "" {
			cc.Project = config.ProjectID
		}
		if strings.TrimSpace(config.Location) != "" {
			cc.Location = config.Location
		}
	} else if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("failed to create Gemini client: %w: API key is empty", ErrEmbeddingUnavailable)
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
	}, nil
}

// Embed implements the embedding functionality using the Gemini API
func (c *GeminiClient) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	dim := int32(c.config.Dim)
	cfg := genai.EmbedContentConfig{
		TaskType:             string(task),
		OutputDimensionality: &dim,
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, errors.New("no embedding returned")
	}

	return res.Embeddings[0].Values, nil
}

// Complete sends a single-turn prompt and returns the text of the first candidate.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.config.Temperature),
	}
	if c.config.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = answersSchema()
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.ChatModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no completion returned")
	}

	return resp.Text(), nil
}

// ListModels returns the models that support content generation.
func (c *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if len(m.SupportedActions) > 0 && !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		out = append(out, ModelInfo{
			Name:        m.Name,
			Description: m.Description,
			Actions:     m.SupportedActions,
		})
	}
	return out, nil
}

func (c *GeminiClient) Dim() int {
	return c.config.Dim
}

// answersSchema is the structured form of the per-candidate answer.
func answersSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"answers": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"candidate": {Type: genai.TypeString},
						"response":  {Type: genai.TypeString},
					},
					Required: []string{"candidate", "response"},
				},
			},
		},
		Required: []string{"answers"},
	}
}
