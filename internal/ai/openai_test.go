package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClassifyOpenAIError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ProviderErrorKind
	}{
		{"bad request", &openai.APIError{HTTPStatusCode: 400, Message: "bad"}, ProviderRejected},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401, Message: "invalid key"}, ProviderRejected},
		{"unknown model", fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: 404}), ProviderRejected},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, ProviderRateLimited},
		{"request timeout", &openai.RequestError{HTTPStatusCode: 408, Err: errors.New("timeout")}, ProviderTimeout},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, ProviderUnavailable},
		{"gateway", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, ProviderUnavailable},
		{"deadline", context.DeadlineExceeded, ProviderTimeout},
		{"network", errors.New("connection reset"), ProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var pe *ProviderError
			if !errors.As(classifyOpenAIError("m", tc.err), &pe) {
				t.Fatalf("not a ProviderError")
			}
			if pe.Kind != tc.want {
				t.Errorf("kind = %s, want %s", pe.Kind, tc.want)
			}
			if pe.Transient() == (tc.want == ProviderRejected) {
				t.Errorf("Transient() = %v for %s", pe.Transient(), pe.Kind)
			}
		})
	}
}
