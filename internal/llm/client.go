// Package llm provides the text-in/text-out and embedding shim over LLM
// providers, built on CloudWeGo Eino components.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client is the collaborator interface the controller depends on. It is
// synchronous and carries no streaming contract.
type Client interface {
	// Generate produces a completion for the prompt at the given temperature.
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)

	// Embed produces an embedding vector for a single text. Providers may
	// not support batching, so callers embed one document at a time.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerateError wraps a chat-completion failure.
type GenerateError struct {
	Provider string
	Err      error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("llm generate (%s): %v", e.Provider, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// EmbedError wraps an embedding failure.
type EmbedError struct {
	Provider string
	Err      error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("llm embed (%s): %v", e.Provider, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider       string
	Model          string // Chat model
	EmbeddingModel string // Embedding model (optional)
	APIKey         string // Required for OpenAI, Anthropic, Gemini
	BaseURL        string // Required for Ollama (default: http://localhost:11434)
}

// retryDelay is the backoff before the single transient-error retry.
const retryDelay = 500 * time.Millisecond

// EinoClient implements Client over Eino chat and embedding components.
type EinoClient struct {
	cfg      Config
	chat     model.BaseChatModel
	embedder embedding.Embedder
}

// New constructs a client for the configured provider. The embedder is
// created lazily on first Embed call so chat-only deployments do not need
// an embedding model.
func New(ctx context.Context, cfg Config) (*EinoClient, error) {
	chat, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &EinoClient{cfg: cfg, chat: chat}, nil
}

// Generate implements Client. A single transient failure is retried once
// after a short delay.
func (c *EinoClient) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	messages := []*schema.Message{schema.UserMessage(prompt)}

	resp, err := c.chat.Generate(ctx, messages, model.WithTemperature(temperature))
	if err != nil && isTransient(err) {
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return "", &GenerateError{Provider: c.cfg.Provider, Err: ctx.Err()}
		}
		resp, err = c.chat.Generate(ctx, messages, model.WithTemperature(temperature))
	}
	if err != nil {
		return "", &GenerateError{Provider: c.cfg.Provider, Err: err}
	}
	return resp.Content, nil
}

// Embed implements Client.
func (c *EinoClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		emb, err := newEmbedder(ctx, c.cfg)
		if err != nil {
			return nil, &EmbedError{Provider: c.cfg.Provider, Err: err}
		}
		c.embedder = emb
	}

	vectors, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil && isTransient(err) {
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, &EmbedError{Provider: c.cfg.Provider, Err: ctx.Err()}
		}
		vectors, err = c.embedder.EmbedStrings(ctx, []string{text})
	}
	if err != nil {
		return nil, &EmbedError{Provider: c.cfg.Provider, Err: err}
	}
	if len(vectors) == 0 {
		return nil, &EmbedError{Provider: c.cfg.Provider, Err: fmt.Errorf("no embedding returned")}
	}

	// Eino returns float64 vectors.
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}

func newChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini extension reads its key from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, ollama, anthropic, gemini)", cfg.Provider)
	}
}

func newEmbedder(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})

	case ProviderGemini, ProviderAnthropic:
		// Anthropic has no embedding API; Gemini embeddings cover both.
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required for embeddings")
		}
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultGeminiEmbeddingModel
		}
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Model: modelName,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// isTransient reports whether an error is worth a single retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection") ||
		strings.Contains(s, "temporary")
}
