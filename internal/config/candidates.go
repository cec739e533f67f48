package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Candidate is one entry of the registry: an identifier and the documents that describe them.
type Candidate struct {
	ID      string   `yaml:"id"`
	Sources []string `yaml:"sources"`
}

// CandidateList is the ordered Candidate Registry shared by ingest and query.
type CandidateList []Candidate

// DefaultCandidates is the registry used when none is configured.
func DefaultCandidates() CandidateList {
	return CandidateList{
		{ID: "Jaime_Mulet", Sources: []string{"./data/mulet.pdf"}},
		{ID: "Carolina_Toha", Sources: []string{"./data/toha.pdf"}},
		{ID: "Jeanette_Jara", Sources: []string{"./data/jara.pdf"}},
		{ID: "Gonzalo_Winter", Sources: []string{"./data/winter.pdf"}},
	}
}

// Decode parses "Id=path1|path2,Id2=path3". It backs both the environment
// variable and the --candidates flag.
func (c *CandidateList) Decode(value string) error {
	var out CandidateList
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, paths, found := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		if !found || id == "" {
			return fmt.Errorf("invalid candidate entry %q, want Id=path1|path2", entry)
		}
		cand := Candidate{ID: id}
		for _, p := range strings.Split(paths, "|") {
			if p = strings.TrimSpace(p); p != "" {
				cand.Sources = append(cand.Sources, p)
			}
		}
		out = append(out, cand)
	}
	*c = out
	return nil
}

// IDs returns the candidate identifiers in registry order.
func (c CandidateList) IDs() []string {
	ids := make([]string, len(c))
	for i, cand := range c {
		ids[i] = cand.ID
	}
	return ids
}

// Validate requires a non-empty registry with unique, non-empty identifiers.
func (c CandidateList) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("candidate registry is empty")
	}
	seen := make(map[string]bool, len(c))
	for i, cand := range c {
		id := strings.TrimSpace(cand.ID)
		if id == "" {
			return fmt.Errorf("candidate %d has an empty id", i)
		}
		if strings.ContainsAny(id, ":\n") {
			return fmt.Errorf("candidate id %q must not contain ':' or newlines", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate candidate id %q", id)
		}
		seen[id] = true
	}
	return c.validateSources()
}

// validateSources rejects a document claimed by two candidates, either as the
// same path or through a directory that contains another candidate's source.
// Stored chunks are keyed by source path, so the second candidate would take
// over the first one's chunks.
func (c CandidateList) validateSources() error {
	owner := map[string]string{}
	for _, cand := range c {
		for _, src := range cand.Sources {
			if strings.TrimSpace(src) == "" {
				continue
			}
			p := filepath.Clean(strings.TrimSpace(src))
			for other, id := range owner {
				if id == cand.ID && other != p {
					continue
				}
				if p == other || within(p, other) || within(other, p) {
					return fmt.Errorf("source %q of candidate %q overlaps %q of candidate %q", src, cand.ID, other, id)
				}
			}
			owner[p] = cand.ID
		}
	}
	return nil
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
