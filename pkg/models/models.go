package models

import "time"

// Chunk is a contiguous span of a candidate's source document.
// Start and End are rune offsets into the normalized document text.
type Chunk struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	CandidateID string    `json:"candidate_id"`
	SourcePath  string    `json:"source_path"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	Start       int       `json:"start"`
	End         int       `json:"end"`
	CreatedAt   time.Time `json:"created_at"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// CandidateAnswer is one per-candidate section of a model answer.
type CandidateAnswer struct {
	Candidate string `json:"candidate"`
	Response  string `json:"response"`
}

// Source tells where a QueryResult came from.
type Source string

const (
	SourceLLM   Source = "llm"
	SourceCache Source = "cache"
)

type QueryResult struct {
	Question string            `json:"question"`
	Answers  []CandidateAnswer `json:"answers"`
	Source   Source            `json:"source"`
}
