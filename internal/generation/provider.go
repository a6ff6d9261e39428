package generation

import "context"

// Image is an inline image attached to a completion request.
type Image struct {
	Data     []byte
	MimeType string
}

// Provider defines the completion capability consumed by the pipeline.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
type Provider interface {
	// Complete sends the prompt, and the image when non-nil, and returns the
	// generated text. Errors wrap ErrTransient or ErrFatal.
	Complete(ctx context.Context, prompt string, image *Image) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string, image *Image) (string, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, prompt string, image *Image) (string, error) {
	return f(ctx, prompt, image)
}
