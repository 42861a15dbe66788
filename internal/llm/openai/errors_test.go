package openai

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/apperr"
)

func TestClassify_NonAPIErrorDefaultsTransient(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	require.Equal(t, apperr.ClassTransient, apperr.ClassOf(err))
}

func TestClassify_WrapsOriginalError(t *testing.T) {
	original := errors.New("boom")
	err := classify(original)
	require.ErrorIs(t, err, original)
}

func TestRetryAfterSeconds_ExtractsHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"42"}}}
	apiErr := &openai.Error{StatusCode: http.StatusTooManyRequests, Response: resp}
	require.Equal(t, 42, retryAfterSeconds(apiErr))
}

func TestRetryAfterSeconds_ZeroWhenHeaderMissing(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	apiErr := &openai.Error{StatusCode: http.StatusTooManyRequests, Response: resp}
	require.Equal(t, 0, retryAfterSeconds(apiErr))
}

func TestRetryAfterSeconds_ZeroWhenResponseNil(t *testing.T) {
	apiErr := &openai.Error{StatusCode: http.StatusTooManyRequests}
	require.Equal(t, 0, retryAfterSeconds(apiErr))
}

func TestRetryAfterSeconds_ZeroWhenHeaderUnparseable(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"not-a-number"}}}
	apiErr := &openai.Error{StatusCode: http.StatusTooManyRequests, Response: resp}
	require.Equal(t, 0, retryAfterSeconds(apiErr))
}
