package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/phrazzld/scry-notes/internal/generation"
)

// ProviderCall records one Complete invocation.
type ProviderCall struct {
	Prompt   string
	HasImage bool
}

// MockProvider implements generation.Provider for testing.
type MockProvider struct {
	// CompleteFn scripts the response. When nil, Complete echoes the last
	// line of the prompt.
	CompleteFn func(ctx context.Context, prompt string, image *generation.Image) (string, error)

	mu    sync.Mutex
	calls []ProviderCall
}

var _ generation.Provider = (*MockProvider)(nil)

// Complete implements generation.Provider.
func (m *MockProvider) Complete(ctx context.Context, prompt string, image *generation.Image) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ProviderCall{Prompt: prompt, HasImage: image != nil})
	m.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, prompt, image)
	}
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return lines[len(lines)-1], nil
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProviderCall(nil), m.calls...)
}

// CallCount returns how many times Complete was called.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsContaining counts calls whose prompt contains substr.
func (m *MockProvider) CallsContaining(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}
