package embedder

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultOpenAIModel = string(openai.SmallEmbedding3)
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hash"

	DefaultOllamaHost = "http://localhost:11434"

	// Dimensions
	LocalDimension = 384
)

// openAIDimensions lists the native dimension of known OpenAI models
var openAIDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// transientStatus reports whether an HTTP status is worth retrying
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// markTransient wraps network-level failures and deadline errors in ErrTransient
func markTransient(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI embedder. baseURL may point at any
// OpenAI-compatible endpoint; empty uses api.openai.com.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	// Data carries its own index; place each vector accordingly
	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	return vectors, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.HTTPStatusCode) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if transientStatus(reqErr.HTTPStatusCode) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}
	return markTransient(err)
}

func (o *OpenAIProvider) Verify(ctx context.Context) error {
	vectors, err := o.Embed(ctx, []string{"kaze verify"})
	if err != nil {
		return err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return fmt.Errorf("model %s returned no embedding", o.model)
	}
	return nil
}

func (o *OpenAIProvider) Dimension() int {
	return openAIDimensions[o.model]
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// OllamaProvider implements Embedder using a local Ollama server
type OllamaProvider struct {
	client     *api.Client
	httpClient *http.Client
	model      string
}

// NewOllamaProvider creates an embedder talking to the Ollama server at host
func NewOllamaProvider(host, model string) (*OllamaProvider, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	return &OllamaProvider{
		client:     api.NewClient(base, httpClient),
		httpClient: httpClient,
		model:      model,
	}, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, classifyOllamaError(err)
	}
	return resp.Embeddings, nil
}

func classifyOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if transientStatus(statusErr.StatusCode) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}
	return markTransient(err)
}

func (o *OllamaProvider) Verify(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}
	vectors, err := o.Embed(ctx, []string{"kaze verify"})
	if err != nil {
		return err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return fmt.Errorf("model %s returned no embedding", o.model)
	}
	return nil
}

// Dimension is unknown until the model answers
func (o *OllamaProvider) Dimension() int {
	return 0
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by hashing word and word-pair features
// into a fixed number of buckets. Deterministic, so identical texts always
// produce identical vectors.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a local embedder; dimension <= 0 uses LocalDimension
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     fmt.Sprintf("%s-%d", DefaultLocalModel, dimension),
		dimension: dimension,
	}
}

func (l *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.embedOne(text)
	}
	return vectors, nil
}

func (l *LocalProvider) embedOne(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	add := func(feature string, weight float32) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vector[int(sum%uint32(l.dimension))] += sign * weight
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Verify(ctx context.Context) error {
	return ctx.Err()
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
