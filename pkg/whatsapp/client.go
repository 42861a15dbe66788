package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/ports"
)

const (
	defaultTimeout      = 10 * time.Second // spec section 5: gateway calls default to 10s
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
)

// Client implements ports.Gateway against the external gateway's REST API.
// Grounded on the teacher's pkg/whatsapp.Client connection-pooled transport
// and exponential-backoff retry shape, stripped of the inbound webhook
// verification that belongs to the webhook handler (spec section 4.B), not
// the egress client.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
}

var _ ports.Gateway = (*Client)(nil)

// NewClient constructs a gateway Client. baseURL and apiKey come from the
// WaSession record (gatewayApiUrl, decrypted gatewayApiKey).
func NewClient(baseURL, apiKey string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
}

func (c *Client) CreateSession(ctx context.Context, sessionID string, webhook ports.WebhookConfig) error {
	body := createSessionRequest{
		SessionID: sessionID,
		Webhook: webhookPayload{
			URL:    webhook.URL,
			Events: webhook.Events,
			Secret: webhook.Secret,
		},
	}
	return c.doWithRetry(ctx, http.MethodPost, "/sessions", body, nil)
}

func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (ports.SessionStatus, error) {
	var resp sessionStatusResponse
	path := fmt.Sprintf("/sessions/%s", sessionID)
	if err := c.doWithRetry(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return ports.SessionStatus{}, err
	}
	return ports.SessionStatus{Status: resp.Status, QRCode: resp.QRCode}, nil
}

func (c *Client) SendMessage(ctx context.Context, sessionID, chatID, text string) error {
	path := fmt.Sprintf("/sessions/%s/messages", sessionID)
	return c.doWithRetry(ctx, http.MethodPost, path, sendMessageRequest{ChatID: chatID, Text: text}, nil)
}

func (c *Client) SendTyping(ctx context.Context, sessionID, chatID string, duration time.Duration) error {
	path := fmt.Sprintf("/sessions/%s/typing", sessionID)
	return c.doWithRetry(ctx, http.MethodPost, path, sendTypingRequest{ChatID: chatID, DurationMs: duration.Milliseconds()}, nil)
}

func (c *Client) RestartSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/sessions/%s/restart", sessionID)
	return c.doWithRetry(ctx, http.MethodPost, path, nil, nil)
}

// doWithRetry performs one request with bounded exponential-backoff retry
// on transient failures, classifying the final error per the apperr
// taxonomy so the pipeline's backoff policy (spec section 4.E) can act on
// it uniformly.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body, dst interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		err := c.do(ctx, method, path, body, dst)
		if err == nil {
			return nil
		}
		lastErr = err

		class := apperr.ClassOf(err)
		if !class.Retryable() {
			return err
		}
		if attempt < c.retryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}
	}
	return lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryDelay * time.Duration(1<<uint(attempt))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (c *Client) do(ctx context.Context, method, path string, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.New(apperr.ClassValidation, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.New(apperr.ClassValidation, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New(apperr.ClassTransient, fmt.Errorf("gateway request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperr.New(apperr.ClassAuthentication, fmt.Errorf("gateway auth failed: %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return apperr.RateLimited(fmt.Errorf("gateway rate limited"), retryAfter)
	}
	if resp.StatusCode >= 500 {
		return apperr.New(apperr.ClassTransient, fmt.Errorf("gateway server error: %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var envelope apiErrorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return apperr.New(apperr.ClassValidation, fmt.Errorf("gateway rejected request: %s", envelope.Error.Message))
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return apperr.New(apperr.ClassTransient, fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 30
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 30
}
