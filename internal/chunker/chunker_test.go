package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEdgeCases(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		assert.Nil(t, Split("", 100, 10))
	})

	t.Run("text shorter than max", func(t *testing.T) {
		chunks := Split("hello", 100, 10)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, "hello", chunks[0].Text)
	})

	t.Run("text exactly max", func(t *testing.T) {
		chunks := Split("abcd", 4, 1)
		require.Len(t, chunks, 1)
		assert.Equal(t, "abcd", chunks[0].Text)
	})

	t.Run("invalid max", func(t *testing.T) {
		assert.Nil(t, Split("hello", 0, 0))
	})

	t.Run("overlap clamped below max", func(t *testing.T) {
		// overlap >= maxChars would never advance; it is clamped to max-1.
		chunks := Split("abcdefgh", 4, 10)
		require.NotEmpty(t, chunks)
		assert.Equal(t, 1, chunks[1].Start-chunks[0].Start)
	})

	t.Run("negative overlap treated as zero", func(t *testing.T) {
		chunks := Split("abcdefgh", 4, -5)
		require.Len(t, chunks, 2)
		assert.Equal(t, "abcd", chunks[0].Text)
		assert.Equal(t, "efgh", chunks[1].Text)
	})
}

func TestSplitChunkCount(t *testing.T) {
	// For length > maxChars the chunk count is
	// ceil((length - overlap) / (maxChars - overlap)).
	cases := []struct {
		length, max, overlap int
	}{
		{10, 4, 1},
		{10, 4, 2},
		{100, 30, 5},
		{1000, 200, 50},
		{201, 200, 50},
		{2001, 2000, 150},
	}
	for _, tc := range cases {
		text := strings.Repeat("x", tc.length)
		chunks := Split(text, tc.max, tc.overlap)

		step := tc.max - tc.overlap
		want := (tc.length - tc.overlap + step - 1) / step
		assert.Len(t, chunks, want, "length=%d max=%d overlap=%d", tc.length, tc.max, tc.overlap)
	}
}

func TestSplitOverlapAndCoverage(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog and keeps on running"
	maxChars, overlap := 20, 5
	chunks := Split(text, maxChars, overlap)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), maxChars)
		assert.Equal(t, string(runes[c.Start:c.Start+len([]rune(c.Text))]), c.Text)

		if i > 0 {
			prev := chunks[i-1]
			// Adjacent chunks share exactly the trailing overlap runes.
			assert.Equal(t, prev.Start+maxChars-overlap, c.Start)
			tail := string([]rune(prev.Text)[maxChars-overlap:])
			head := string([]rune(c.Text)[:overlap])
			assert.Equal(t, tail, head)
		}
	}

	// Every rune is covered by at least one chunk.
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(runes), last.Start+len([]rune(last.Text)))
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("package main\nfunc main() {}\n", 40)
	a := Split(text, 100, 20)
	b := Split(text, 100, 20)
	assert.Equal(t, a, b)
}

func TestSplitMultibyte(t *testing.T) {
	// Boundaries are counted in runes, not bytes.
	text := strings.Repeat("héllo wörld ", 10)
	chunks := Split(text, 25, 5)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 25)
	}
	var total int
	for i, c := range chunks {
		if i == len(chunks)-1 {
			total = c.Start + len([]rune(c.Text))
		}
	}
	assert.Equal(t, len([]rune(text)), total)
}
