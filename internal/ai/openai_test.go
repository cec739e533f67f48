package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// newTestServer records every request body and answers with the given status/body.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any, *sync.Mutex) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		payload["_path"] = r.URL.Path
		payload["_auth"] = r.Header.Get("Authorization")
		payload["_project"] = r.Header.Get("OpenAI-Project")
		mu.Lock()
		requests = append(requests, payload)
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &requests, &mu
}

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name            string
		config          *ClientConfig
		expectedEmbed   string
		expectedChat    string
		expectedDim     int
		expectedBaseURL string
	}{
		{
			name:            "defaults",
			config:          &ClientConfig{APIKey: "k"},
			expectedEmbed:   "text-embedding-3-small",
			expectedChat:    "gpt-4o-mini",
			expectedDim:     1536,
			expectedBaseURL: "https://api.openai.com/v1",
		},
		{
			name:            "large model dimension",
			config:          &ClientConfig{APIKey: "k", EmbedModel: "text-embedding-3-large"},
			expectedEmbed:   "text-embedding-3-large",
			expectedChat:    "gpt-4o-mini",
			expectedDim:     3072,
			expectedBaseURL: "https://api.openai.com/v1",
		},
		{
			name:            "custom base url trimmed",
			config:          &ClientConfig{APIKey: "k", BaseURL: "http://localhost:11434/v1/", Dim: 768, ChatModel: "llama3"},
			expectedEmbed:   "text-embedding-3-small",
			expectedChat:    "llama3",
			expectedDim:     768,
			expectedBaseURL: "http://localhost:11434/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(tt.config)
			if c.config.EmbedModel != tt.expectedEmbed {
				t.Errorf("Expected EmbedModel %q, got %q", tt.expectedEmbed, c.config.EmbedModel)
			}
			if c.config.ChatModel != tt.expectedChat {
				t.Errorf("Expected ChatModel %q, got %q", tt.expectedChat, c.config.ChatModel)
			}
			if c.Dim() != tt.expectedDim {
				t.Errorf("Expected Dim %d, got %d", tt.expectedDim, c.Dim())
			}
			if c.config.BaseURL != tt.expectedBaseURL {
				t.Errorf("Expected BaseURL %q, got %q", tt.expectedBaseURL, c.config.BaseURL)
			}
			if c.http == nil || c.http.Timeout != 60*time.Second {
				t.Error("Expected HTTP client with 60s timeout")
			}
		})
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	tests := []struct {
		name         string
		apiKey       string
		statusCode   int
		responseBody string
		expectError  bool
		errorMsg     string
		expectedLen  int
	}{
		{name: "missing API key", apiKey: "", expectError: true, errorMsg: "PROVIDER_API_KEY unset"},
		{
			name:         "successful embedding",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": [{"embedding": [0.1, 0.2, 0.3, 0.4, 0.5]}]}`,
			expectedLen:  5,
		},
		{
			name:         "non-200 status code",
			apiKey:       "test-key",
			statusCode:   401,
			responseBody: `{"error": {"message": "bad key"}}`,
			expectError:  true,
			errorMsg:     "openai embedding non-200",
		},
		{name: "invalid JSON response", apiKey: "test-key", statusCode: 200, responseBody: `invalid json`, expectError: true},
		{name: "empty data array", apiKey: "test-key", statusCode: 200, responseBody: `{"data": []}`, expectError: true, errorMsg: "no embedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, requests, mu := newTestServer(t, tt.statusCode, tt.responseBody)
			c := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, BaseURL: server.URL, Dim: 5})

			vec, err := c.Embed(context.Background(), "texto de prueba", TaskDocument)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(vec) != tt.expectedLen {
				t.Errorf("Expected %d values, got %d", tt.expectedLen, len(vec))
			}

			mu.Lock()
			defer mu.Unlock()
			if len(*requests) != 1 {
				t.Fatalf("Expected 1 request, got %d", len(*requests))
			}
			req := (*requests)[0]
			if req["_path"] != "/embeddings" {
				t.Errorf("Expected /embeddings, got %v", req["_path"])
			}
			if req["input"] != "texto de prueba" {
				t.Errorf("Expected input to be forwarded, got %v", req["input"])
			}
			if req["dimensions"] != float64(5) {
				t.Errorf("Expected dimensions 5, got %v", req["dimensions"])
			}
			if req["_auth"] != "Bearer "+tt.apiKey {
				t.Errorf("Expected bearer auth header, got %v", req["_auth"])
			}
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	tests := []struct {
		name         string
		jsonOutput   bool
		statusCode   int
		responseBody string
		expected     string
		expectError  bool
		errorMsg     string
	}{
		{
			name:         "multi-line answer is returned verbatim",
			statusCode:   200,
			responseBody: `{"choices": [{"message": {"content": "Candidato A: uno\nCandidato B: dos"}}]}`,
			expected:     "Candidato A: uno\nCandidato B: dos",
		},
		{
			name:         "json mode sets response_format",
			jsonOutput:   true,
			statusCode:   200,
			responseBody: `{"choices": [{"message": {"content": "{\"answers\": []}"}}]}`,
			expected:     `{"answers": []}`,
		},
		{
			name:         "api error message surfaced",
			statusCode:   429,
			responseBody: `{"error": {"message": "Rate limit exceeded"}}`,
			expectError:  true,
			errorMsg:     "Rate limit exceeded",
		},
		{
			name:         "status used when no message",
			statusCode:   503,
			responseBody: `{}`,
			expectError:  true,
			errorMsg:     "503",
		},
		{
			name:         "no choices",
			statusCode:   200,
			responseBody: `{"choices": []}`,
			expectError:  true,
			errorMsg:     "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, requests, mu := newTestServer(t, tt.statusCode, tt.responseBody)
			c := NewOpenAIClient(&ClientConfig{APIKey: "k", BaseURL: server.URL, JSONOutput: tt.jsonOutput, Temperature: 0.5})

			out, err := c.Complete(context.Background(), "prompt")
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if out != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, out)
			}

			mu.Lock()
			defer mu.Unlock()
			req := (*requests)[0]
			if req["_path"] != "/chat/completions" {
				t.Errorf("Expected /chat/completions, got %v", req["_path"])
			}
			_, hasFormat := req["response_format"]
			if hasFormat != tt.jsonOutput {
				t.Errorf("response_format present=%v, want %v", hasFormat, tt.jsonOutput)
			}
		})
	}
}

func TestOpenAIClient_CompleteMissingKey(t *testing.T) {
	c := NewOpenAIClient(&ClientConfig{})
	if _, err := c.Complete(context.Background(), "p"); err == nil || !strings.Contains(err.Error(), "PROVIDER_API_KEY unset") {
		t.Errorf("Expected missing key error, got %v", err)
	}
}

func TestOpenAIClient_CompleteWithCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(100 * time.Millisecond):
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "tarde"}}]}`))
		}
	}))
	defer server.Close()

	c := NewOpenAIClient(&ClientConfig{APIKey: "k", BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected error due to cancelled context")
	}
	if !strings.Contains(err.Error(), "context canceled") && !strings.Contains(err.Error(), "operation was canceled") {
		t.Errorf("Expected context cancellation error, got: %v", err)
	}
}

func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name            string
		apiKey          string
		projectID       string
		expectedProject string
	}{
		{"project key with project", "sk-proj-abc", "proj_1", "proj_1"},
		{"project key without project", "sk-proj-abc", "", ""},
		{"regular key ignores project", "sk-abc", "proj_1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			c.setHeaders(req)
			if req.Header.Get("Content-Type") != "application/json" {
				t.Error("Expected JSON content type")
			}
			if req.Header.Get("Authorization") != "Bearer "+tt.apiKey {
				t.Errorf("Unexpected Authorization header %q", req.Header.Get("Authorization"))
			}
			if req.Header.Get("OpenAI-Project") != tt.expectedProject {
				t.Errorf("Expected OpenAI-Project %q, got %q", tt.expectedProject, req.Header.Get("OpenAI-Project"))
			}
		})
	}
}
