package generation

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var defaultPrompts embed.FS

// Template names, one per provider call the pipeline makes.
const (
	PromptExtraction    = "extraction"
	PromptCorrection    = "correction"
	PromptSummary       = "summary"
	PromptComprehensive = "comprehensive"
	PromptReconcile     = "reconcile"
	PromptKnowledge     = "knowledge"
	PromptTags          = "tags"
)

var promptNames = []string{
	PromptExtraction, PromptCorrection, PromptSummary, PromptComprehensive,
	PromptReconcile, PromptKnowledge, PromptTags,
}

// DefaultMaxTags bounds how many tags the tagging prompt asks for.
const DefaultMaxTags = 5

// promptData represents the data passed to the prompt templates
type promptData struct {
	Text       string
	Summaries  []string
	Composite  string
	Individual string
	MaxTags    int
}

// Prompts renders the prompt sent for each pipeline stage.
type Prompts struct {
	templates map[string]*template.Template
}

// NewPrompts parses the embedded default templates. When dir is non-empty,
// any <name>.tmpl file found there replaces the default of the same name.
func NewPrompts(dir string) (*Prompts, error) {
	p := &Prompts{templates: make(map[string]*template.Template, len(promptNames))}
	funcs := template.FuncMap{"inc": func(i int) int { return i + 1 }}

	for _, name := range promptNames {
		content, err := fs.ReadFile(defaultPrompts, "prompts/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("%w: missing default prompt %s: %v", ErrInvalidConfig, name, err)
		}

		if dir != "" {
			override, err := os.ReadFile(filepath.Join(dir, name+".tmpl"))
			switch {
			case err == nil:
				content = override
			case !os.IsNotExist(err):
				return nil, fmt.Errorf("%w: failed to read prompt %s: %v", ErrInvalidConfig, name, err)
			}
		}

		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse prompt %s: %v", ErrInvalidConfig, name, err)
		}
		p.templates[name] = tmpl
	}

	return p, nil
}

// Extraction renders the OCR extraction prompt.
func (p *Prompts) Extraction() (string, error) {
	return p.render(PromptExtraction, promptData{})
}

// Correction renders the transcript correction prompt.
func (p *Prompts) Correction(text string) (string, error) {
	return p.render(PromptCorrection, promptData{Text: text})
}

// Summary renders the single-text summary prompt.
func (p *Prompts) Summary(text string) (string, error) {
	return p.render(PromptSummary, promptData{Text: text})
}

// Comprehensive renders the prompt that synthesizes one summary from many.
func (p *Prompts) Comprehensive(summaries []string) (string, error) {
	return p.render(PromptComprehensive, promptData{Summaries: summaries})
}

// Reconcile renders the corrective prompt for a low-confidence summary.
func (p *Prompts) Reconcile(individual, composite string) (string, error) {
	return p.render(PromptReconcile, promptData{Individual: individual, Composite: composite})
}

// Knowledge renders the knowledge-record prompt.
func (p *Prompts) Knowledge(summary string) (string, error) {
	return p.render(PromptKnowledge, promptData{Text: summary})
}

// Tags renders the tag generation prompt.
func (p *Prompts) Tags(summary string, maxTags int) (string, error) {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return p.render(PromptTags, promptData{Text: summary, MaxTags: maxTags})
}

func (p *Prompts) render(name string, data promptData) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown prompt %s", ErrInvalidConfig, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", name, err)
	}

	prompt := strings.TrimSpace(buf.String())
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}
