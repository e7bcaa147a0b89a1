package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semdex/internal/config"
	"semdex/internal/embedder"
	"semdex/internal/store"
)

// stubEmbedder produces deterministic vectors without a backend. Texts
// containing failOn return a recoverable error; fatal simulates a
// misconfigured backend.
type stubEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
	fatal  bool
	model  string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.fatal {
		return nil, fmt.Errorf("embed: %w", embedder.ErrBackendUnavailable)
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		if s.failOn != "" && strings.Contains(t, s.failOn) {
			return nil, fmt.Errorf("embed batch: boom")
		}
		vecs[i] = []float32{float32(len(t)), float32(len(t) % 7), 1}
	}
	return vecs, nil
}

func (s *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubEmbedder) Model() string {
	if s.model == "" {
		return "stub-model"
	}
	return s.model
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestIndexer(t *testing.T, emb Embedder) (*Indexer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"), "code_chunks", "testproj", "cosine")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, emb, config.Default().Indexing), st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func indexedPaths(t *testing.T, st *store.Store) []string {
	t.Helper()
	files, err := st.ListFiles()
	require.NoError(t, err)
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func TestIndexProject(t *testing.T) {
	emb := &stubEmbedder{}
	ix, st := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "lib/util.go", "package lib")
	writeFile(t, root, "docs/guide.md", "# guide")
	writeFile(t, root, ".git/config", "[core]")
	writeFile(t, root, "node_modules/x/index.js", "x")

	count, failures, err := ix.IndexProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Empty(t, failures)

	assert.ElementsMatch(t,
		[]string{"main.go", "lib/util.go", "docs/guide.md"},
		indexedPaths(t, st))

	model, err := st.GetMeta(store.MetaKeyModel)
	require.NoError(t, err)
	assert.Equal(t, "stub-model", model)
}

func TestIndexProjectUnchangedFilesSkipEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	ix, _ := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	_, _, err := ix.IndexProject(context.Background(), root)
	require.NoError(t, err)
	after := emb.callCount()

	// Nothing changed, so the second run never touches the embedder.
	_, _, err = ix.IndexProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, after, emb.callCount())

	// Touching one file re-embeds only that file.
	writeFile(t, root, "a.go", "package a // changed")
	_, _, err = ix.IndexProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, after+1, emb.callCount())
}

func TestIndexProjectFailureIsolation(t *testing.T) {
	emb := &stubEmbedder{failOn: "POISON"}
	ix, st := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "good1.go", "package good1")
	writeFile(t, root, "bad.go", "package bad // POISON")
	writeFile(t, root, "good2.go", "package good2")

	count, failures, err := ix.IndexProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad.go", failures[0].Path)

	assert.ElementsMatch(t, []string{"good1.go", "good2.go"}, indexedPaths(t, st))
}

func TestIndexProjectAbortsOnBackendConfigError(t *testing.T) {
	emb := &stubEmbedder{fatal: true}
	ix, _ := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	_, _, err := ix.IndexProject(context.Background(), root)
	assert.ErrorIs(t, err, embedder.ErrBackendUnavailable)
}

func TestIndexProjectModelChangeClearsIndex(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"), "code_chunks", "p", "cosine")
	require.NoError(t, err)
	defer st.Close()

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")

	first := &stubEmbedder{model: "model-one"}
	_, _, err = New(st, first, config.Default().Indexing).IndexProject(context.Background(), root)
	require.NoError(t, err)

	// A different model invalidates every stored vector; the run starts from
	// an empty table and re-embeds despite unchanged content.
	second := &stubEmbedder{model: "model-two"}
	count, _, err := New(st, second, config.Default().Indexing).IndexProject(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Greater(t, second.callCount(), 0)

	model, err := st.GetMeta(store.MetaKeyModel)
	require.NoError(t, err)
	assert.Equal(t, "model-two", model)
}

func TestIndexSingleFile(t *testing.T) {
	t.Run("indexes one file", func(t *testing.T) {
		emb := &stubEmbedder{}
		ix, st := newTestIndexer(t, emb)

		root := t.TempDir()
		writeFile(t, root, "only.go", "package only")

		require.NoError(t, ix.IndexSingleFile(context.Background(), root, "only.go"))
		assert.Equal(t, []string{"only.go"}, indexedPaths(t, st))
	})

	t.Run("unchanged content is a no-op", func(t *testing.T) {
		emb := &stubEmbedder{}
		ix, _ := newTestIndexer(t, emb)

		root := t.TempDir()
		writeFile(t, root, "only.go", "package only")

		require.NoError(t, ix.IndexSingleFile(context.Background(), root, "only.go"))
		calls := emb.callCount()
		require.NoError(t, ix.IndexSingleFile(context.Background(), root, "only.go"))
		assert.Equal(t, calls, emb.callCount())
	})

	t.Run("vanished file becomes a deletion", func(t *testing.T) {
		emb := &stubEmbedder{}
		ix, st := newTestIndexer(t, emb)

		root := t.TempDir()
		writeFile(t, root, "gone.go", "package gone")
		require.NoError(t, ix.IndexSingleFile(context.Background(), root, "gone.go"))
		require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))

		require.NoError(t, ix.IndexSingleFile(context.Background(), root, "gone.go"))
		assert.Empty(t, indexedPaths(t, st))
	})
}

func TestRemoveFileFromIndex(t *testing.T) {
	emb := &stubEmbedder{}
	ix, st := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")
	_, _, err := ix.IndexProject(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, ix.RemoveFileFromIndex("a.go"))
	assert.Equal(t, []string{"b.go"}, indexedPaths(t, st))

	// Never-indexed paths remove cleanly.
	require.NoError(t, ix.RemoveFileFromIndex("phantom.go"))
}

func TestSearchText(t *testing.T) {
	emb := &stubEmbedder{}
	ix, _ := newTestIndexer(t, emb)

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	_, _, err := ix.IndexProject(context.Background(), root)
	require.NoError(t, err)

	results, err := ix.SearchText(context.Background(), "package a", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].FilePath)
	assert.Equal(t, "package a", results[0].Text)
}
