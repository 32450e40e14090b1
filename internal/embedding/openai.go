package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/coachctx/internal/config"
)

const (
	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultModel         = "text-embedding-3-small"
	DefaultDimensions    = 1536
	DefaultMaxInputChars = 8000
	DefaultBatchSize     = 100
	DefaultBatchDelay    = 100 * time.Millisecond
	httpTimeout          = 30 * time.Second
)

// Options configures a Client. Zero values select the defaults above.
type Options struct {
	HTTPClient    *http.Client
	BaseURL       string
	APIKey        string
	Model         string
	Dimensions    int
	MaxInputChars int
	BatchDelay    time.Duration
}

// Client talks to an OpenAI-compatible /embeddings endpoint.
type Client struct {
	client        *http.Client
	baseURL       string
	apiKey        string
	modelName     string
	dimensions    int
	maxInputChars int
	batchDelay    time.Duration
}

var _ BatchEmbedder = (*Client)(nil)

type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewClient builds a Client. A missing API key is not an error here; Embed
// reports ErrMissingCredentials so the failure surfaces at the layer that
// asked for the vector.
func NewClient(opts Options) *Client {
	c := &Client{
		client:        opts.HTTPClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		modelName:     opts.Model,
		dimensions:    opts.Dimensions,
		maxInputChars: opts.MaxInputChars,
		batchDelay:    opts.BatchDelay,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: httpTimeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.modelName == "" {
		c.modelName = DefaultModel
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultDimensions
	}
	if c.maxInputChars <= 0 {
		c.maxInputChars = DefaultMaxInputChars
	}
	if c.batchDelay < 0 {
		c.batchDelay = 0
	}
	return c
}

// NewClientFromConfig builds a Client from the loaded settings.
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(Options{
		BaseURL:       cfg.EmbeddingBaseURL,
		APIKey:        cfg.EmbeddingAPIKey,
		Model:         cfg.EmbeddingModel,
		Dimensions:    cfg.EmbeddingDimensions,
		MaxInputChars: cfg.EmbeddingMaxInputChars,
		BatchDelay:    time.Duration(cfg.EmbeddingBatchDelayMS) * time.Millisecond,
	})
}

func (c *Client) ModelName() string { return c.modelName }
func (c *Client) Dimensions() int   { return c.dimensions }

// Embed returns the embedding of the normalized text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}
	input := Normalize(text, c.maxInputChars)
	if input == "" {
		return nil, ErrEmptyInput
	}
	results, err := c.embedRequest(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: %d results for 1 input (model=%s)", ErrMalformedResponse, len(results), c.modelName)
	}
	return results[0], nil
}

// EmbedBatch embeds texts in chunks of batchSize, pausing between chunks.
// Successful chunks are kept when a later one fails.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.apiKey == "" {
		return make([][]float32, len(texts)), ErrMissingCredentials
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	results := make([][]float32, len(texts))
	var errs []error
	for start := 0; start < len(texts); start += batchSize {
		if start > 0 && c.batchDelay > 0 {
			timer := time.NewTimer(c.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				errs = append(errs, ctx.Err())
				return results, errors.Join(errs...)
			case <-timer.C:
			}
		}

		end := min(start+batchSize, len(texts))
		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			batch = append(batch, Normalize(t, c.maxInputChars))
		}

		vectors, err := c.embedRequest(ctx, batch)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("%w: %d results for %d inputs (model=%s)", ErrMalformedResponse, len(vectors), len(batch), c.modelName)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("batch [%d:%d]: %w", start, end, err))
			if ctx.Err() != nil {
				return results, errors.Join(errs...)
			}
			continue
		}
		copy(results[start:end], vectors)
	}
	return results, errors.Join(errs...)
}

func (c *Client) embedRequest(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Input:          input,
		Model:          c.modelName,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w (model=%s, status=%d): %s",
			ErrProviderStatus, c.modelName, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}

	results := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(results) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrMalformedResponse, d.Index)
		}
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrMalformedResponse, len(d.Embedding), c.dimensions)
		}
		results[d.Index] = d.Embedding
	}
	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrMalformedResponse, i)
		}
	}
	return results, nil
}
