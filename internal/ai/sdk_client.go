package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// SDKClient implements Model on top of the go-openai SDK.
type SDKClient struct {
	chat           *openai.Client
	embed          *openai.Client
	chatModel      string
	embeddingModel string
}

var _ Model = (*SDKClient)(nil)

func NewSDKClient(chat ChatConfig, embedding EmbeddingConfig) *SDKClient {
	return &SDKClient{
		chat:           newOpenAIClient(chat.APIKey, chat.BaseURL),
		embed:          newOpenAIClient(embedding.APIKey, embedding.BaseURL),
		chatModel:      chat.Model,
		embeddingModel: embedding.Model,
	}
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (c *SDKClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *SDKClient) EmbedContent(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embed.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrMalformedEmbedding)
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i := range src {
		vec[i] = float32(src[i])
	}
	return vec, nil
}
