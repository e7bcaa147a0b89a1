package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Config holds the embedding client settings.
type Config struct {
	BaseURL     string
	Model       string
	MaxAttempts int           // retry budget per call (default 4)
	BackoffBase time.Duration // first retry delay
	BackoffStep time.Duration // linear increment per attempt
	MinInterval time.Duration // process-wide gap between backend calls
	CacheSize   int           // LRU entries keyed by content hash
	Timeout     time.Duration // per-request HTTP timeout
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = 250 * time.Millisecond
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

// OllamaEmbedder calls the Ollama /api/embed endpoint with retry, a
// process-wide throttle gate, and an LRU cache keyed by content hash.
// A single instance is shared by the bulk indexer, the watcher, and the
// query path, so the throttle is the one point of rate control.
type OllamaEmbedder struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, []float32]

	pullMu sync.Mutex
	pulled bool
}

// New creates an embedder targeting the given Ollama instance.
func New(cfg Config) *OllamaEmbedder {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	cache, _ := lru.New[string, []float32](cfg.CacheSize)
	return &OllamaEmbedder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		cache:   cache,
	}
}

// Model returns the configured model name.
func (e *OllamaEmbedder) Model() string { return e.cfg.Model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text, in input order. Cached texts are
// served without touching the backend; the rest go out in one request,
// retried with linear backoff on transient failures.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if vec, ok := e.cache.Get(contentHash(t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var vecs [][]float32
	err := retryLinear(ctx, e.cfg.MaxAttempts, e.cfg.BackoffBase, e.cfg.BackoffStep, func() error {
		var callErr error
		vecs, callErr = e.callEmbed(ctx, missing)
		if errors.Is(callErr, errModelMissing) {
			callErr = e.provisionModel(ctx, callErr)
			if callErr == nil {
				vecs, callErr = e.callEmbed(ctx, missing)
			}
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	for i, vec := range vecs {
		e.cache.Add(contentHash(missing[i]), vec)
		out[missingIdx[i]] = vec
	}
	return out, nil
}

// EmbedSingle embeds one text and returns its vector.
func (e *OllamaEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Timeouts and refused connections are worth retrying.
		return nil, transient("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		msg := string(respBody)
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, transient("embed returned %d: %s", resp.StatusCode, msg)
		case resp.StatusCode == http.StatusNotFound || strings.Contains(msg, "not found"):
			return nil, fmt.Errorf("%w: model %q: %s", errModelMissing, e.cfg.Model, msg)
		default:
			return nil, fmt.Errorf("%w: embed returned %d: %s", ErrBackendUnavailable, resp.StatusCode, msg)
		}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// provisionModel pulls the configured model once per process, then re-checks
// availability. If the model still isn't served, the original failure is
// surfaced as a configuration error with remediation steps.
func (e *OllamaEmbedder) provisionModel(ctx context.Context, cause error) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	if !e.pulled {
		e.pulled = true
		body, _ := json.Marshal(map[string]any{"model": e.cfg.Model, "stream": false})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/api/pull", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			if resp, pullErr := e.client.Do(req); pullErr == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK && e.modelAvailable(ctx) {
					return nil
				}
			}
		}
	}

	return fmt.Errorf("%w: model %q is not served at %s; run `ollama pull %s` and check the base URL: %v",
		ErrBackendUnavailable, e.cfg.Model, e.cfg.BaseURL, e.cfg.Model, cause)
}

func (e *OllamaEmbedder) modelAvailable(ctx context.Context) bool {
	body, _ := json.Marshal(map[string]string{"model": e.cfg.Model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
