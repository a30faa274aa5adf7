package modelclient

import (
	"errors"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"authentication", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"configuration", &ConfigurationError{}, false},
		{"rate limit", &RateLimitError{}, true},
		{"server error", &ServerError{}, true},
		{"network", &NetworkError{}, true},
		{"request timeout", &RequestTimeoutError{}, true},
		{"generic retryable", &ProviderError{Retryable: true}, true},
		{"generic non-retryable", &ProviderError{Retryable: false}, false},
		{"unknown defaults retryable", errors.New("mystery"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &ClientError{Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "wrapped: underlying" {
		t.Errorf("unexpected error string: %q", err.Error())
	}
}

func TestProviderErrorString(t *testing.T) {
	err := &ProviderError{
		ClientError: ClientError{Message: "boom"},
		Provider:    "openai",
		StatusCode:  500,
		Retryable:   true,
	}
	want := "[openai] boom (status=500, retryable=true)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
