package rag

import (
	"context"
	"fmt"
	"strings"

	"semdex/internal/index"
	"semdex/internal/store"
)

// Retrieve embeds the question and returns the k nearest indexed chunks.
// This is the read path the chat layer calls at prompt time; it is safe to
// run while indexing writes are in flight.
func Retrieve(ctx context.Context, ix *index.Indexer, question string, k int) ([]store.SearchResult, error) {
	results, err := ix.SearchText(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	return results, nil
}

// BuildContext formats retrieved chunks into a prompt context block.
func BuildContext(results []store.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Here is the relevant source code context:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "--- Chunk %d: %s (segment %d, distance %.4f) ---\n",
			i+1, r.FilePath, r.ChunkIndex, r.Distance)
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}
