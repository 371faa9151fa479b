package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	Endpoint   string        // base URL of the embedding service
	Model      string        // requested model identifier
	Dimensions int           // expected vector length; 0 uses DefaultDimensions
	BatchSize  int           // 0 uses DefaultBatchSize
	Timeout    time.Duration // 0 uses DefaultTimeout
	MaxRetries int           // 0 uses DefaultMaxRetries
	PoolSize   int           // 0 uses DefaultPoolSize
}

const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultPoolSize   = 8
)

// HTTPEmbedder requests embeddings from an external HTTP service: POST
// a batch of chunk texts plus the requested model, receive one vector
// and model name per text back.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// New returns an HTTPEmbedder for the given configuration, applying
// defaults for any zero-valued fields.
func New(cfg HTTPConfig) *HTTPEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedItem struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

type embedResponse struct {
	Embeddings []embedItem `json:"embeddings"`
}

// EmbedBatch sends texts in chunks of at most e.config.BatchSize,
// retrying each chunk with exponential backoff via RetryWithBackoff.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([]Result, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var items []embedItem
		err := RetryWithBackoff(ctx, RetryConfig{
			MaxRetries:   e.config.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     16 * time.Second,
			Multiplier:   2.0,
		}, func() error {
			var callErr error
			items, callErr = e.call(ctx, batch)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(items) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: expected %d results, got %d", start, end, len(batch), len(items))
		}
		for _, item := range items {
			out = append(out, Result{Vector: item.Vector, Model: item.Model})
		}
	}
	return out, nil
}

func (e *HTTPEmbedder) call(ctx context.Context, texts []string) ([]embedItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(embedRequest{Model: e.config.Model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.config.Endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return parsed.Embeddings, nil
}

// Dimensions returns the configured embedding vector length.
func (e *HTTPEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the configured model identifier.
func (e *HTTPEmbedder) ModelName() string { return e.config.Model }

// Available performs a lightweight health check against the service root.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle pooled connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
