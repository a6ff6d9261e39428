package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/phrazzld/scry-notes/internal/generation"
	"github.com/phrazzld/scry-notes/internal/redact"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider implements generation.Provider using the Gemini API.
type Provider struct {
	logger *slog.Logger
	models contentGenerator
	model  string
}

var _ generation.Provider = (*Provider)(nil)

// NewProvider validates cfg and creates a Gemini-backed provider.
func NewProvider(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %s",
			generation.ErrInvalidConfig, redact.Error(err))
	}

	return newProvider(logger, client.Models, cfg.ModelName), nil
}

func newProvider(logger *slog.Logger, models contentGenerator, model string) *Provider {
	return &Provider{
		logger: logger.With("component", "gemini_provider", "model", model),
		models: models,
		model:  model,
	}
}

func validateConfig(cfg config.LLMConfig) error {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	return nil
}

// Complete sends one single-turn request and returns the concatenated text of
// the first candidate. Retrying is left to the caller.
func (p *Provider) Complete(ctx context.Context, prompt string, image *generation.Image) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: %w", generation.ErrFatal, generation.ErrEmptyPrompt)
	}

	parts := []*genai.Part{{Text: prompt}}
	if image != nil {
		if len(image.Data) == 0 {
			return "", fmt.Errorf("%w: image input has no data", generation.ErrFatal)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: image.Data, MIMEType: image.MimeType}})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	p.logger.DebugContext(ctx, "calling gemini",
		"prompt_length", len(prompt),
		"has_image", image != nil)

	resp, err := p.models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		classified := classify(err)
		p.logger.WarnContext(ctx, "gemini call failed",
			"error", redact.Error(err),
			"transient", generation.IsTransient(classified))
		return "", classified
	}

	text, err := responseText(resp)
	if err != nil {
		p.logger.WarnContext(ctx, "gemini returned no usable text", "error", err)
		return "", err
	}

	p.logger.DebugContext(ctx, "gemini call succeeded", "response_length", len(text))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: %w: nil response", generation.ErrFatal, generation.ErrEmptyResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %w: prompt blocked (%s)",
			generation.ErrFatal, generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: %w: no candidates", generation.ErrFatal, generation.ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: %w", generation.ErrFatal, generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: %w: empty content", generation.ErrFatal, generation.ErrEmptyResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: %w", generation.ErrFatal, generation.ErrEmptyResponse)
	}
	return text, nil
}
