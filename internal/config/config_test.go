package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("overrides merge with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
embedder:
  base_url: http://embed.internal:11434
  model: mxbai-embed-large
indexing:
  max_chunk_chars: 500
  chunk_overlap: 50
watch:
  debounce_ms: 250
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "http://embed.internal:11434", cfg.Embedder.BaseURL)
		assert.Equal(t, "mxbai-embed-large", cfg.Embedder.Model)
		assert.Equal(t, 500, cfg.Indexing.MaxChunkChars)
		assert.Equal(t, 50, cfg.Indexing.ChunkOverlap)
		assert.Equal(t, 250, cfg.Watch.DebounceMs)

		// Untouched fields keep their defaults.
		assert.Equal(t, Default().Store.BaseTable, cfg.Store.BaseTable)
		assert.Equal(t, Default().Embedder.MaxAttempts, cfg.Embedder.MaxAttempts)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("embedder: [not a map"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestAllowsExtension(t *testing.T) {
	p := Default().Indexing

	assert.True(t, p.AllowsExtension("main.go"))
	assert.True(t, p.AllowsExtension("src/app.TS"))
	assert.True(t, p.AllowsExtension("README.md"))
	assert.False(t, p.AllowsExtension("image.png"))
	assert.False(t, p.AllowsExtension("binary"))
	assert.False(t, p.AllowsExtension("Makefile"))
}

func TestExcluded(t *testing.T) {
	p := Indexing{Excludes: []string{"node_modules", "vendor", "**/*.gen.go"}}

	assert.True(t, p.Excluded("node_modules/lodash/index.js"))
	assert.True(t, p.Excluded("pkg/vendor/lib/a.go"))
	assert.True(t, p.Excluded("api/types.gen.go"))
	assert.False(t, p.Excluded("internal/store/store.go"))
	assert.False(t, p.Excluded("vendored/a.go"))
}

func TestHidden(t *testing.T) {
	assert.True(t, Hidden(".git/config"))
	assert.True(t, Hidden("src/.cache/a.go"))
	assert.True(t, Hidden(".env"))
	assert.False(t, Hidden("src/main.go"))
	assert.False(t, Hidden("a/b/c.go"))
}

func TestEligible(t *testing.T) {
	p := Default().Indexing

	assert.True(t, p.Eligible("main.go", 100))
	assert.False(t, p.Eligible("main.go", 0), "empty files are skipped")
	assert.False(t, p.Eligible("main.go", p.MaxFileBytes+1), "oversized files are skipped")
	assert.False(t, p.Eligible(".git/hooks/pre-commit.sh", 100))
	assert.False(t, p.Eligible("node_modules/a/index.js", 100))
	assert.False(t, p.Eligible("logo.svg", 100))
}
