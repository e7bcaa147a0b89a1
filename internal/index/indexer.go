package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"semdex/internal/chunker"
	"semdex/internal/config"
	"semdex/internal/store"
)

const embedBatchSize = 32

// Embedder is the text-to-vector backend the indexer drives. Satisfied by
// *embedder.OllamaEmbedder.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// FileFailure records one file that could not be indexed during a bulk run.
type FileFailure struct {
	Path string
	Err  error
}

// Indexer ties the chunker, embedder, and vector store together. It is the
// single write path into the index: the bulk walk, the watcher, and manual
// re-index calls all go through it.
type Indexer struct {
	store  *store.Store
	emb    Embedder
	policy config.Indexing

	locks pathLocks

	// Progress, if set, is called after each file during IndexProject.
	Progress func(done int, path string)
}

// New creates an Indexer over the given store and embedding backend.
func New(st *store.Store, emb Embedder, policy config.Indexing) *Indexer {
	return &Indexer{store: st, emb: emb, policy: policy}
}

func (ix *Indexer) workers() int {
	if ix.policy.Workers > 0 {
		return ix.policy.Workers
	}
	return runtime.NumCPU()
}

// IndexSingleFile reads one file and replaces its rows in the index as one
// logical unit. Writes for the same path are serialized. A file that
// vanished between the event and the read is treated as a deletion.
func (ix *Indexer) IndexSingleFile(ctx context.Context, root, relPath string) error {
	unlock := ix.locks.lock(relPath)
	defer unlock()
	return ix.indexLocked(ctx, root, relPath)
}

func (ix *Indexer) indexLocked(ctx context.Context, root, relPath string) error {
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return ix.store.DeleteFile(relPath)
		}
		return fmt.Errorf("read %s: %w", relPath, err)
	}

	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])
	if existing, err := ix.store.FileHash(relPath); err == nil && existing == hash {
		return nil // unchanged
	}

	segments := chunker.Split(string(src), ix.policy.MaxChunkChars, ix.policy.ChunkOverlap)
	if len(segments) == 0 {
		return ix.store.ReplaceFile(relPath, hash, nil)
	}

	chunks := make([]store.Chunk, len(segments))
	for i := 0; i < len(segments); i += embedBatchSize {
		end := min(i+embedBatchSize, len(segments))
		texts := make([]string, end-i)
		for j, seg := range segments[i:end] {
			texts[j] = seg.Text
		}
		vecs, err := ix.emb.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s: %w", relPath, err)
		}
		for j, vec := range vecs {
			chunks[i+j] = store.Chunk{Index: i + j, Text: texts[j], Vector: vec}
		}
	}

	if err := ix.store.ReplaceFile(relPath, hash, chunks); err != nil {
		return fmt.Errorf("store %s: %w", relPath, err)
	}
	return nil
}

// RemoveFileFromIndex deletes all rows for a path. Removing a path that was
// never indexed succeeds silently.
func (ix *Indexer) RemoveFileFromIndex(relPath string) error {
	unlock := ix.locks.lock(relPath)
	defer unlock()
	return ix.store.DeleteFile(relPath)
}

// Embed produces a vector for arbitrary text, e.g. a search query. It runs
// through the same retry and throttle policy as indexing.
func (ix *Indexer) Embed(ctx context.Context, text string) ([]float32, error) {
	return ix.emb.EmbedSingle(ctx, text)
}

// SimilaritySearch returns the k nearest indexed chunks to the query vector.
func (ix *Indexer) SimilaritySearch(queryVector []float32, k int) ([]store.SearchResult, error) {
	return ix.store.Search(queryVector, k)
}

// SearchText embeds a query string and searches in one step.
func (ix *Indexer) SearchText(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	vec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.SimilaritySearch(vec, k)
}
