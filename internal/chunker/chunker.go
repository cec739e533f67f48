// Package chunker splits candidate documents into overlapping spans.
package chunker

import (
	"strings"
	"unicode"

	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Config configures how documents are split into chunks. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the 1000/200 policy.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Chunker produces chunks that are exact spans of the input text, so that
// removing each chunk's overlap with its predecessor and concatenating the
// rest gives back the original document.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker, fixing up nonsensical settings.
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}
	return &Chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}
}

// Split cuts text into chunks stamped with sourcePath, candidateID and a
// zero-based ChunkIndex in production order.
func (c *Chunker) Split(text, sourcePath, candidateID string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []models.Chunk
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(runes, start, end)
		}

		chunks = append(chunks, models.Chunk{
			CandidateID: candidateID,
			SourcePath:  sourcePath,
			ChunkIndex:  len(chunks),
			Text:        string(runes[start:end]),
			Start:       start,
			End:         end,
		})
		if end == n {
			break
		}
		start = c.nextStart(runes, start, end)
	}
	return chunks
}

// separators in order of preference. The empty entry stands for a sentence end.
var separators = []string{"\n\n", "\n", "", " "}

// breakPoint picks where the chunk starting at start should end, looking for
// the most natural boundary in the back half of the window [start, limit).
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	floor := start + c.size/2
	if floor <= start {
		floor = start + 1
	}
	for _, sep := range separators {
		if sep == "" {
			if i := lastSentenceEnd(runes, floor, limit); i > 0 {
				return i
			}
			continue
		}
		if i := lastIndex(runes, floor, limit, []rune(sep)); i > 0 {
			return i
		}
	}
	return limit
}

// nextStart moves back by the overlap from end and then forward to the start
// of a word, always past start.
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	next := end - c.overlap
	if next <= start {
		return end
	}
	for i := next; i < end; i++ {
		if unicode.IsSpace(runes[i]) {
			for i < end && unicode.IsSpace(runes[i]) {
				i++
			}
			if i < end {
				return i
			}
			break
		}
	}
	return next
}

// lastIndex returns the position right after the last occurrence of sep that
// ends within [floor, limit], or -1.
func lastIndex(runes []rune, floor, limit int, sep []rune) int {
	for after := limit; after >= floor; after-- {
		begin := after - len(sep)
		if begin < 0 {
			break
		}
		if equalRunes(runes[begin:after], sep) {
			return after
		}
	}
	return -1
}

// lastSentenceEnd returns the position right after the last sentence
// terminator followed by whitespace within [floor, limit], or -1.
func lastSentenceEnd(runes []rune, floor, limit int) int {
	for after := limit; after >= floor; after-- {
		if after < 2 || after > len(runes) {
			continue
		}
		if isTerminator(runes[after-2]) && unicode.IsSpace(runes[after-1]) {
			return after
		}
	}
	return -1
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '…':
		return true
	}
	return false
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
