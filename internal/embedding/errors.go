package embedding

import "errors"

var (
	// ErrMissingCredentials is returned when no API key is configured.
	ErrMissingCredentials = errors.New("embedding: missing API credentials")
	// ErrProviderStatus is returned for non-2xx provider responses.
	ErrProviderStatus = errors.New("embedding: provider returned error status")
	// ErrMalformedResponse is returned when the provider payload cannot be used.
	ErrMalformedResponse = errors.New("embedding: malformed provider response")
	// ErrEmptyInput is returned when the text is empty after normalization.
	ErrEmptyInput = errors.New("embedding: empty input")
)
