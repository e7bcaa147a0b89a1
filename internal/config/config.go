package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// EmbedderConfig configures the embedding backend client.
type EmbedderConfig struct {
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	Dimensions        int    `yaml:"dimensions,omitempty"`
	MaxAttempts       int    `yaml:"max_attempts"`
	BackoffBaseMs     int    `yaml:"backoff_base_ms"`
	BackoffStepMs     int    `yaml:"backoff_step_ms"`
	ThrottleMs        int    `yaml:"throttle_ms"`
	CacheSize         int    `yaml:"cache_size"`
	RequestTimeoutSec int    `yaml:"request_timeout_secs"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	Path      string `yaml:"path"`
	BaseTable string `yaml:"base_table"`
	Metric    string `yaml:"metric"` // "cosine" or "l2"
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
	Workers    int `yaml:"workers"`
}

// Indexing is the file-eligibility policy consumed by the bulk walker and
// the watcher's event filter. It is owned by configuration management and
// never mutated by the indexing core.
type Indexing struct {
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Extensions   []string `yaml:"extensions"`
	Excludes     []string `yaml:"excludes"`

	MaxChunkChars int `yaml:"max_chunk_chars"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	Workers       int `yaml:"workers"`
}

// Config is the root application configuration.
type Config struct {
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
	Indexing Indexing       `yaml:"indexing"`
	Watch    WatchConfig    `yaml:"watch"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Embedder: EmbedderConfig{
			BaseURL:           "http://localhost:11434",
			Model:             "nomic-embed-text",
			MaxAttempts:       4,
			BackoffBaseMs:     250,
			BackoffStepMs:     250,
			ThrottleMs:        50,
			CacheSize:         4096,
			RequestTimeoutSec: 120,
		},
		Store: StoreConfig{
			BaseTable: "code_chunks",
			Metric:    "cosine",
		},
		Indexing: Indexing{
			MaxFileBytes: 1 << 20,
			Extensions: []string{
				"go", "js", "jsx", "ts", "tsx", "py", "rb", "rs", "java",
				"c", "h", "cpp", "hpp", "cs", "php", "swift", "kt", "scala",
				"sh", "sql", "md", "yaml", "yml", "json", "toml",
			},
			Excludes: []string{
				".git", ".svn", ".hg", "node_modules", "vendor",
				"__pycache__", ".idea", ".vscode", "dist", "build",
				"target", ".semdex",
			},
			MaxChunkChars: 2000,
			ChunkOverlap:  150,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
			Workers:    4,
		},
	}
}

// Load reads a YAML config file and fills unset fields with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// AllowsExtension reports whether the file's extension is on the allow-list.
func (p Indexing) AllowsExtension(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	for _, e := range p.Extensions {
		if ext == strings.ToLower(strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// Excluded reports whether a slash-separated repo-relative path falls under
// an excluded directory or matches an exclude glob.
func (p Indexing) Excluded(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pat := range p.Excludes {
		// Bare directory names exclude the whole subtree.
		for _, seg := range strings.Split(relPath, "/") {
			if seg == pat {
				return true
			}
		}
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}

// Hidden reports whether any path segment is dot-prefixed.
func Hidden(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// Eligible combines the extension, hidden-file, exclusion, and size checks
// for a single repo-relative file path.
func (p Indexing) Eligible(relPath string, size int64) bool {
	if Hidden(relPath) || p.Excluded(relPath) || !p.AllowsExtension(relPath) {
		return false
	}
	if p.MaxFileBytes > 0 && size > p.MaxFileBytes {
		return false
	}
	return size > 0
}
