package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/auth"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/rag"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog/hlog"
)

type answerer interface {
	Query(ctx context.Context, question string) (models.QueryResult, error)
}

type chunkCounter interface {
	CountByCandidate(ctx context.Context, collection string) (map[string]int, error)
}

type server struct {
	rag        answerer
	counts     chunkCounter
	collection string
	candidates config.CandidateList
	timeout    time.Duration
}

type queryRequest struct {
	Question string `json:"question"`
}

type candidateInfo struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`
	Chunks  int      `json:"chunks"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/auth/token", auth.HandleIssueToken)
	mux.HandleFunc("/query", auth.RequireAuth(s.handleQuery))
	mux.HandleFunc("/candidates", auth.RequireAuth(s.handleCandidates))
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "API is running"})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Método no permitido.")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Cuerpo JSON inválido: se espera {\"question\": \"...\"}.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.rag.Query(ctx, req.Question)
	if err != nil {
		status, detail := classify(err)
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("query failed")
		writeDetail(w, status, detail)
		return
	}

	writeJSON(w, http.StatusOK, res)
	hlog.FromRequest(r).Info().Str("path", "/query").Str("source", string(res.Source)).
		Int("answers", len(res.Answers)).Dur("dur", time.Since(start)).Msg("served")
}

func (s *server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts, err := s.counts.CountByCandidate(ctx, s.collection)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("count chunks")
		writeDetail(w, http.StatusInternalServerError, "Error interno del servidor: "+err.Error())
		return
	}

	out := make([]candidateInfo, 0, len(s.candidates))
	for _, c := range s.candidates {
		sources := c.Sources
		if sources == nil {
			sources = []string{}
		}
		out = append(out, candidateInfo{ID: c.ID, Sources: sources, Chunks: counts[c.ID]})
	}
	writeJSON(w, http.StatusOK, out)
}

// classify maps pipeline errors to an HTTP status and a client-facing detail.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest, "La pregunta no puede estar vacía."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "La consulta excedió el tiempo máximo."
	case errors.Is(err, ai.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable, "Servicio de embeddings no disponible."
	case errors.Is(err, ai.ErrGenerationFailed):
		return http.StatusBadGateway, "Error al generar la respuesta."
	default:
		return http.StatusInternalServerError, "Error interno del servidor: " + err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
