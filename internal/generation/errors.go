package generation

import "errors"

// Common errors returned by providers
var (
	// ErrTransient is returned for temporary failures (timeouts, rate limits,
	// 5xx responses) that might resolve on retry.
	ErrTransient = errors.New("transient provider error")

	// ErrFatal is returned for failures that will not resolve on retry.
	ErrFatal = errors.New("fatal provider error")

	// ErrContentBlocked is returned when the provider blocks the content due
	// to safety filters. It is always wrapped together with ErrFatal.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrEmptyResponse is returned when the provider produced no text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrInvalidConfig is returned when the provider configuration is invalid
	ErrInvalidConfig = errors.New("invalid provider configuration")

	// ErrEmptyPrompt is returned when a prompt renders to an empty string.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) && !errors.Is(err, ErrFatal)
}
