package study

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/study-assistant/internal/models"
)

//go:embed prompts.yaml
var defaultPrompts []byte

const defaultItemCount = 5

type promptDef struct {
	Template string `yaml:"template"`
	Schema   string `yaml:"schema"`
}

type prompt struct {
	tmpl   *template.Template
	schema *jsonschema.Schema
}

type promptData struct {
	Content string
	Count   int
}

// PromptSet holds a compiled template, and optionally an output schema, per action.
type PromptSet struct {
	prompts map[models.Action]*prompt
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() (*PromptSet, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts compiles a YAML document keyed by action name.
func ParsePrompts(data []byte) (*PromptSet, error) {
	var defs map[string]promptDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	set := &PromptSet{prompts: make(map[models.Action]*prompt, len(defs))}
	for name, def := range defs {
		action, err := models.ParseAction(name)
		if err != nil {
			return nil, fmt.Errorf("prompts: %w", err)
		}

		tmpl, err := template.New(name).Option("missingkey=error").Parse(def.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		p := &prompt{tmpl: tmpl}

		if strings.TrimSpace(def.Schema) != "" {
			compiler := jsonschema.NewCompiler()
			resource := name + ".schema.json"
			if err := compiler.AddResource(resource, strings.NewReader(def.Schema)); err != nil {
				return nil, fmt.Errorf("failed to load %s schema: %w", name, err)
			}
			if p.schema, err = compiler.Compile(resource); err != nil {
				return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
			}
		}
		set.prompts[action] = p
	}

	for _, a := range []models.Action{models.ActionSummary, models.ActionFlashcards, models.ActionQuiz} {
		if _, ok := set.prompts[a]; !ok {
			return nil, fmt.Errorf("prompts: missing template for %s", a)
		}
	}
	return set, nil
}

// Render fills the action's template with content.
func (s *PromptSet) Render(action models.Action, content string) (string, error) {
	p, ok := s.prompts[action]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
	var b strings.Builder
	if err := p.tmpl.Execute(&b, promptData{Content: content, Count: defaultItemCount}); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", action, err)
	}
	return b.String(), nil
}

func (s *PromptSet) schema(action models.Action) *jsonschema.Schema {
	if p, ok := s.prompts[action]; ok {
		return p.schema
	}
	return nil
}
