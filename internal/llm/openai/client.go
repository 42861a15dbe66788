// Package openai adapts the official OpenAI Go SDK to ports.LLM and
// ports.Embeddings, targeting an OpenAI-compatible aggregator endpoint
// (LLM_BASE_URL) rather than api.openai.com directly.
package openai

import (
	"context"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/ports"
)

// Client wraps *openai.Client to satisfy ports.LLM and ports.Embeddings.
type Client struct {
	client openai.Client
}

var (
	_ ports.LLM        = (*Client)(nil)
	_ ports.Embeddings = (*Client)(nil)
)

// NewClient constructs a Client against baseURL (an OpenAI-compatible
// aggregator) with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: openai.NewClient(opts...)}
}

// Chat implements ports.LLM.
func (c *Client) Chat(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    convertMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.ChatResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return ports.ChatResponse{}, apperr.New(apperr.ClassTransient, errEmptyChoices)
	}

	return ports.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Embed implements ports.Embeddings.
func (c *Client) Embed(ctx context.Context, req ports.EmbedRequest) (ports.EmbedResponse, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(req.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Input},
	})
	if err != nil {
		return ports.EmbedResponse{}, classify(err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}

	return ports.EmbedResponse{
		Embeddings: out,
		Usage: ports.Usage{
			PromptTokens: int(resp.Usage.PromptTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func convertMessages(messages []ports.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
