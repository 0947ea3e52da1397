package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Embedder turns text into a vector.
type Embedder interface {
	EmbedContent(ctx context.Context, text string) ([]float32, error)
}

// Generator turns a prompt into text.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Model is the generative-model collaborator used across the pipeline.
type Model interface {
	Embedder
	Generator
}

const (
	APIOpenAI = "openai"
	APIGemini = "gemini"
	APIOllama = "ollama"
)

var ErrMalformedEmbedding = errors.New("malformed embedding payload")

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider response status %d: %s", e.StatusCode, e.Body)
}

type ChatConfig struct {
	API     string
	BaseURL string
	APIKey  string
	Model   string
}

type EmbeddingConfig struct {
	API     string
	BaseURL string
	APIKey  string
	Model   string
}

const (
	ProviderHTTP = "http"
	ProviderSDK  = "openai-sdk"
)

// New builds the Model for the named provider.
func New(provider string, chat ChatConfig, embedding EmbeddingConfig, timeout time.Duration) (Model, error) {
	switch provider {
	case "", ProviderHTTP:
		return NewOpenAICompatibleClient(chat, embedding, timeout), nil
	case ProviderSDK:
		return NewSDKClient(chat, embedding), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
