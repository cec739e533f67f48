package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrIngestInProgress is returned when another process holds the ingest lock for a collection.
var ErrIngestInProgress = errors.New("ingest already in progress")

// chunkNamespace seeds deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c2a8e-3b7d-4c55-9a0e-2d4b8f3e71a9")

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// ChunkSearcher is the read side used by the retriever.
type ChunkSearcher interface {
	Search(ctx context.Context, collection string, vec []float32, k int, opt QueryOpts) ([]models.SearchResult, error)
}

// ChunkStore defines the methods that the Store must implement.
type ChunkStore interface {
	ChunkSearcher
	Migrate(ctx context.Context, dim int) error
	DeleteCollection(ctx context.Context, collection string) (int64, error)
	UpsertChunks(ctx context.Context, chunks []models.Chunk, vecs [][]float32) error
	ReplaceCollection(ctx context.Context, collection string, chunks []models.Chunk, vecs [][]float32) error
	CountByCandidate(ctx context.Context, collection string) (map[string]int, error)
	AcquireIngestLock(ctx context.Context, collection string) (func(), error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  id            TEXT PRIMARY KEY,
  collection    TEXT NOT NULL,
  candidate_id  TEXT NOT NULL,
  source_path   TEXT NOT NULL,
  chunk_index   INT  NOT NULL,
  char_start    INT  NOT NULL,
  char_end      INT  NOT NULL,
  content       TEXT NOT NULL,
  embedding     vector(%d) NOT NULL,
  created_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS chunks_collection_source_idx_uidx
  ON chunks (collection, source_path, chunk_index);

CREATE INDEX IF NOT EXISTS chunks_collection_candidate_idx
  ON chunks (collection, candidate_id);

CREATE INDEX IF NOT EXISTS chunks_embedding_hnsw_idx
  ON chunks USING hnsw (embedding vector_cosine_ops);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// ChunkID derives a stable identifier from the chunk's position in its collection.
func ChunkID(collection, sourcePath string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(collection+"|"+sourcePath+"|"+strconv.Itoa(index))).String()
}

// DeleteCollection removes every chunk of a collection and reports how many went.
func (s *Store) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	return deleteCollection(ctx, s.pool, collection)
}

func deleteCollection(ctx context.Context, q querier, collection string) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM chunks WHERE collection = $1`, collection)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertChunks inserts or updates chunks with their embeddings in one batch.
func (s *Store) UpsertChunks(ctx context.Context, chunks []models.Chunk, vecs [][]float32) error {
	return upsertChunks(ctx, s.pool, chunks, vecs)
}

func upsertChunks(ctx context.Context, q querier, chunks []models.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vecs))
	}
	if len(chunks) == 0 {
		return nil
	}

	const stmt = `
		INSERT INTO chunks (
			id, collection, candidate_id, source_path, chunk_index,
			char_start, char_end, content, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		ON CONFLICT (collection, source_path, chunk_index) DO UPDATE SET
			id           = EXCLUDED.id,
			candidate_id = EXCLUDED.candidate_id,
			char_start   = EXCLUDED.char_start,
			char_end     = EXCLUDED.char_end,
			content      = EXCLUDED.content,
			embedding    = EXCLUDED.embedding,
			created_at   = chunks.created_at;`

	batch := &pgx.Batch{}
	for i, c := range chunks {
		if len(vecs[i]) == 0 {
			return fmt.Errorf("chunk %s/%d has no embedding", c.SourcePath, c.ChunkIndex)
		}
		id := c.ID
		if id == "" {
			id = ChunkID(c.Collection, c.SourcePath, c.ChunkIndex)
		}
		batch.Queue(stmt,
			id, c.Collection, c.CandidateID, c.SourcePath, c.ChunkIndex,
			c.Start, c.End, c.Text, pgvector.NewVector(vecs[i]),
		)
	}

	br := q.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// ReplaceCollection deletes a collection and writes the given chunks in a single
// transaction, so readers see either the old collection or the new one.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, chunks []models.Chunk, vecs [][]float32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := deleteCollection(ctx, tx, collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := upsertChunks(ctx, tx, chunks, vecs); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return tx.Commit(ctx)
}

type QueryOpts struct {
	CandidateID string // optional: restrict to one candidate
}

const chunkColumns = "id, collection, candidate_id, source_path, chunk_index, char_start, char_end, content, created_at"

// buildSearch returns the similarity query and its arguments. A candidate
// filter runs as an exact scan over that candidate's rows: the HNSW index only
// yields ef_search neighbours across all candidates before filtering, which
// can leave a candidate with no rows at all.
func buildSearch(collection string, vec []float32, k int, opt QueryOpts) (string, []any) {
	args := []any{pgvector.NewVector(vec), collection}
	if opt.CandidateID == "" {
		return fmt.Sprintf(`
SELECT %s,
       1 - (embedding <=> $1) AS score
FROM chunks
WHERE collection = $2
ORDER BY embedding <=> $1
LIMIT %d;
`, chunkColumns, k), args
	}

	args = append(args, opt.CandidateID)
	q := fmt.Sprintf(`
WITH candidate_chunks AS MATERIALIZED (
  SELECT %s, embedding <=> $1 AS distance
  FROM chunks
  WHERE collection = $2 AND candidate_id = $3
)
SELECT %s,
       1 - distance AS score
FROM candidate_chunks
ORDER BY distance, chunk_index
LIMIT %d;
`, chunkColumns, chunkColumns, k)
	return q, args
}

// Search returns the k chunks closest to vec by cosine distance, most similar first.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, k int, opt QueryOpts) ([]models.SearchResult, error) {
	if k <= 0 {
		return []models.SearchResult{}, nil
	}
	q, args := buildSearch(collection, vec, k, opt)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var c models.Chunk
		var score float64
		if err := rows.Scan(
			&c.ID, &c.Collection, &c.CandidateID, &c.SourcePath, &c.ChunkIndex, &c.Start, &c.End, &c.Text, &c.CreatedAt,
			&score,
		); err != nil {
			return nil, err
		}
		out = append(out, models.SearchResult{Chunk: c, Score: score})
	}
	return out, rows.Err()
}

// CountByCandidate returns the number of stored chunks per candidate in a collection.
func (s *Store) CountByCandidate(ctx context.Context, collection string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT candidate_id, count(*) FROM chunks WHERE collection = $1 GROUP BY candidate_id ORDER BY candidate_id`,
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// Generation identifies the current build of a collection. Every chunk of a
// rebuild shares the transaction's timestamp, so the value changes on each
// ReplaceCollection and is empty for a missing collection.
func (s *Store) Generation(ctx context.Context, collection string) (string, error) {
	var g string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(max(created_at)::text, '') FROM chunks WHERE collection = $1`,
		collection).Scan(&g)
	return g, err
}

// AcquireIngestLock takes a session advisory lock keyed by collection. The lock
// lives on a dedicated connection until the returned release func is called.
func (s *Store) AcquireIngestLock(ctx context.Context, collection string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, collection).Scan(&ok); err != nil {
		conn.Release()
		return nil, err
	}
	if !ok {
		conn.Release()
		return nil, ErrIngestInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, collection)
		conn.Release()
	}, nil
}
