package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/auth"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/rag"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type MockAnswerer struct {
	QueryFunc func(ctx context.Context, question string) (models.QueryResult, error)
}

func (m *MockAnswerer) Query(ctx context.Context, question string) (models.QueryResult, error) {
	return m.QueryFunc(ctx, question)
}

type MockCounter struct {
	CountByCandidateFunc func(ctx context.Context, collection string) (map[string]int, error)
}

func (m *MockCounter) CountByCandidate(ctx context.Context, collection string) (map[string]int, error) {
	return m.CountByCandidateFunc(ctx, collection)
}

func newTestServer(q func(ctx context.Context, question string) (models.QueryResult, error)) *server {
	return &server{
		rag: &MockAnswerer{QueryFunc: q},
		counts: &MockCounter{CountByCandidateFunc: func(ctx context.Context, collection string) (map[string]int, error) {
			return map[string]int{"Jaime_Mulet": 12}, nil
		}},
		collection: "elecciones_candidates",
		candidates: config.CandidateList{
			{ID: "Jaime_Mulet", Sources: []string{"./data/mulet.pdf"}},
			{ID: "Carolina_Toha"},
		},
		timeout: time.Second,
	}
}

func TestHandleQuery(t *testing.T) {
	auth.InitializeAuth("k", "secret", time.Hour, true)
	srv := newTestServer(func(ctx context.Context, question string) (models.QueryResult, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("Expected a request deadline")
		}
		return models.QueryResult{
			Question: question,
			Answers:  []models.CandidateAnswer{{Candidate: "Jaime_Mulet", Response: "Regiones."}},
			Source:   models.SourceLLM,
		}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"¿Qué proponen en regiones?"}`))
	req.Header.Set("X-API-Key", "k")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res models.QueryResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if res.Question != "¿Qué proponen en regiones?" || res.Source != models.SourceLLM || len(res.Answers) != 1 {
		t.Errorf("Unexpected response %+v", res)
	}
}

func TestHandleQuery_ErrorMapping(t *testing.T) {
	auth.InitializeAuth("k", "secret", time.Hour, true)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty question", rag.ErrEmptyQuestion, http.StatusBadRequest},
		{"embedding unavailable", fmt.Errorf("retrieve A: %w", ai.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{"generation failed", fmt.Errorf("%w: %w", ai.ErrGenerationFailed, errors.New("quota")), http.StatusBadGateway},
		{"deadline wins over generation", fmt.Errorf("%w: %w", ai.ErrGenerationFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(func(ctx context.Context, question string) (models.QueryResult, error) {
				return models.QueryResult{}, tt.err
			})
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"x"}`))
			req.Header.Set("X-API-Key", "k")
			w := httptest.NewRecorder()
			srv.routes().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, w.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["detail"] == "" {
				t.Errorf("Expected a detail body, got %q (%v)", w.Body.String(), err)
			}
		})
	}
}

func TestHandleQuery_BadRequests(t *testing.T) {
	auth.InitializeAuth("k", "secret", time.Hour, false)
	called := false
	srv := newTestServer(func(ctx context.Context, question string) (models.QueryResult, error) {
		called = true
		return models.QueryResult{}, nil
	})

	tests := []struct {
		method     string
		body       string
		wantStatus int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/query", strings.NewReader(tt.body))
		w := httptest.NewRecorder()
		srv.routes().ServeHTTP(w, req)
		if w.Code != tt.wantStatus {
			t.Errorf("%s %q: expected %d, got %d", tt.method, tt.body, tt.wantStatus, w.Code)
		}
	}
	if called {
		t.Error("Pipeline should not run for malformed requests")
	}
}

func TestHandleQuery_RequiresAuth(t *testing.T) {
	auth.InitializeAuth("k", "secret", time.Hour, true)
	srv := newTestServer(func(ctx context.Context, question string) (models.QueryResult, error) {
		t.Error("Pipeline should not run without credentials")
		return models.QueryResult{}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"x"}`))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandleCandidates(t *testing.T) {
	auth.InitializeAuth("k", "secret", time.Hour, false)
	srv := newTestServer(nil)

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var got []candidateInfo
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "Jaime_Mulet" || got[0].Chunks != 12 || got[1].Chunks != 0 {
		t.Errorf("Unexpected candidates %+v", got)
	}
	if got[1].Sources == nil {
		t.Error("Expected empty sources array, not null")
	}

	srv.counts = &MockCounter{CountByCandidateFunc: func(ctx context.Context, collection string) (map[string]int, error) {
		return nil, errors.New("db down")
	}}
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(nil)

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["message"] != "API is running" {
		t.Errorf("Unexpected health body %v", body)
	}

	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /healthz, got %d", w.Code)
	}
}
