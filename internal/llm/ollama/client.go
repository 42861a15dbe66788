// Package ollama is a minimal net/http client against a local Ollama
// server, selected when LLM_PROVIDER=ollama (spec section 6.6).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/ports"
)

const defaultTimeout = 60 * time.Second

// Client wraps the Ollama HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ ports.LLM        = (*Client)(nil)
	_ ports.Embeddings = (*Client)(nil)
)

// NewClient constructs a Client against baseURL (e.g. http://localhost:11434).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Chat implements ports.LLM.
func (c *Client) Chat(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	body := chatRequest{
		Model:  req.Model,
		Stream: false,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.TopP != nil {
		body.Options.TopP = *req.TopP
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var resp chatResponse
	if err := c.do(ctx, "/api/chat", body, &resp); err != nil {
		return ports.ChatResponse{}, err
	}

	return ports.ChatResponse{
		Content: resp.Message.Content,
		Usage: ports.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements ports.Embeddings.
func (c *Client) Embed(ctx context.Context, req ports.EmbedRequest) (ports.EmbedResponse, error) {
	var resp embedResponse
	if err := c.do(ctx, "/api/embed", embedRequest{Model: req.Model, Input: req.Input}, &resp); err != nil {
		return ports.EmbedResponse{}, err
	}
	return ports.EmbedResponse{Embeddings: resp.Embeddings}, nil
}

func (c *Client) do(ctx context.Context, path string, body, dst interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperr.New(apperr.ClassFatal, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return apperr.New(apperr.ClassFatal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperr.New(apperr.ClassTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperr.New(apperr.ClassTransient, fmt.Errorf("ollama: %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.ClassValidation, fmt.Errorf("ollama: %s", resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return apperr.New(apperr.ClassTransient, err)
	}
	return nil
}
