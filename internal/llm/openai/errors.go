package openai

import (
	"errors"
	"strconv"

	openai "github.com/openai/openai-go/v3"

	"github.com/wa-agent/backend/internal/apperr"
)

var errEmptyChoices = errors.New("openai: chat completion returned no choices")

// classify maps an SDK error onto the apperr taxonomy the pipeline's
// retry/backoff decisions dispatch on (spec section 7), the same way
// pkg/whatsapp.Client classifies gateway HTTP responses.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return apperr.New(apperr.ClassTransient, err)
	}

	switch {
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return apperr.New(apperr.ClassAuthentication, err)
	case apiErr.StatusCode == 429:
		return apperr.RateLimited(err, retryAfterSeconds(apiErr))
	case apiErr.StatusCode >= 500:
		return apperr.New(apperr.ClassTransient, err)
	case apiErr.StatusCode >= 400:
		return apperr.New(apperr.ClassValidation, err)
	default:
		return apperr.New(apperr.ClassTransient, err)
	}
}

// retryAfterSeconds extracts the provider's Retry-After hint from the raw
// HTTP response the SDK attaches to the error, the same header
// pkg/whatsapp.Client.parseRetryAfter reads off the gateway's 429s. Zero
// means "no hint": apperr.RateLimited's caller falls back to the stage's
// default backoff.
func retryAfterSeconds(apiErr *openai.Error) int {
	if apiErr.Response == nil {
		return 0
	}
	header := apiErr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return seconds
}
