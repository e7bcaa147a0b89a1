package store

// Chunk is one indexed segment of a file, ready to persist.
type Chunk struct {
	Index  int
	Text   string
	Vector []float32
}

// SearchResult is a chunk row returned by a similarity query.
type SearchResult struct {
	FilePath   string
	ChunkIndex int
	Text       string
	Distance   float64
}

// FileInfo summarizes one indexed file. UpdatedAt carries the raw SQLite
// timestamp text; it comes out of an aggregate so the driver cannot type it.
type FileInfo struct {
	Path      string
	Chunks    int
	UpdatedAt string
}
