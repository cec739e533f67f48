package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Retriever returns the most relevant chunk texts of one candidate.
type Retriever interface {
	Retrieve(ctx context.Context, question, candidateID string, k int) ([]string, error)
}

// Assembler builds the multi-candidate context handed to the model.
type Assembler struct {
	Retriever Retriever
	K         int
}

// NewAssembler creates an Assembler retrieving k chunks per candidate.
func NewAssembler(r Retriever, k int) *Assembler {
	return &Assembler{Retriever: r, K: k}
}

// Block labels one candidate's retrieved text.
func Block(candidateID, text string) string {
	return "**Información de " + candidateID + ":**\n" + text
}

// Assemble retrieves for every candidate concurrently and joins one block per
// candidate, in the given order, separated by blank lines.
func (a *Assembler) Assemble(ctx context.Context, question string, candidates []string) (string, error) {
	blocks := make([]string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		g.Go(func() error {
			texts, err := a.Retriever.Retrieve(gctx, question, cand, a.K)
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", cand, err)
			}
			blocks[i] = Block(cand, strings.Join(texts, "\n\n"))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(blocks, "\n\n"), nil
}
