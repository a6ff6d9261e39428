package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/phrazzld/scry-notes/internal/generation"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateConfig(config.LLMConfig{GeminiAPIKey: "k", ModelName: "m"}))
	assert.ErrorIs(t, validateConfig(config.LLMConfig{ModelName: "m"}), generation.ErrInvalidConfig)
	assert.ErrorIs(t, validateConfig(config.LLMConfig{GeminiAPIKey: "k", ModelName: "  "}), generation.ErrInvalidConfig)
}

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(context.Background(), logger.Discard(), config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewProvider(context.Background(), nil, config.LLMConfig{GeminiAPIKey: "k", ModelName: "m"})
	assert.Error(t, err)
}

func TestComplete_TextAndImageParts(t *testing.T) {
	t.Parallel()

	fake := &fakeModels{resp: textResponse("Hello ", "world")}
	p := newProvider(logger.Discard(), fake, "gemini-test")

	got, err := p.Complete(context.Background(), "describe", &generation.Image{Data: []byte{0x89, 0x50}, MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)

	assert.Equal(t, "gemini-test", fake.model)
	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 2)
	assert.Equal(t, "describe", fake.contents[0].Parts[0].Text)
	require.NotNil(t, fake.contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", fake.contents[0].Parts[1].InlineData.MIMEType)
}

func TestComplete_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		resp          *genai.GenerateContentResponse
		err           error
		wantTransient bool
		wantIs        error
	}{
		{
			name:          "rate limited",
			err:           genai.APIError{Code: 429, Message: "quota"},
			wantTransient: true,
		},
		{
			name:          "server error pointer form",
			err:           fmt.Errorf("wrapped: %w", &genai.APIError{Code: 503}),
			wantTransient: true,
		},
		{
			name:   "bad request",
			err:    genai.APIError{Code: 400, Message: "invalid argument"},
			wantIs: generation.ErrFatal,
		},
		{
			name:          "deadline",
			err:           context.DeadlineExceeded,
			wantTransient: true,
		},
		{
			name:          "transport",
			err:           errors.New("connection reset by peer"),
			wantTransient: true,
		},
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
			wantIs: generation.ErrContentBlocked,
		},
		{
			name:   "no candidates",
			resp:   &genai.GenerateContentResponse{},
			wantIs: generation.ErrEmptyResponse,
		},
		{
			name:   "blank text",
			resp:   textResponse("   "),
			wantIs: generation.ErrEmptyResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newProvider(logger.Discard(), &fakeModels{resp: tc.resp, err: tc.err}, "m")
			_, err := p.Complete(context.Background(), "prompt", nil)
			require.Error(t, err)

			assert.Equal(t, tc.wantTransient, generation.IsTransient(err))
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
			if !tc.wantTransient {
				assert.ErrorIs(t, err, generation.ErrFatal)
			}
		})
	}
}

func TestComplete_RejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	fake := &fakeModels{resp: textResponse("unused")}
	p := newProvider(logger.Discard(), fake, "m")

	_, err := p.Complete(context.Background(), " ", nil)
	assert.ErrorIs(t, err, generation.ErrEmptyPrompt)
	assert.Nil(t, fake.contents)
}
