// Package persona provides the persona template registry for the Archie agent.
// Personas are style/behaviour templates applied to the reasoning prompt. The
// registry is loaded once at process start from embedded YAML, every template
// is compiled and validated up front, and the set is immutable afterwards, so
// an unknown or broken persona fails at startup rather than mid-request.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed static/personas.yaml
var personasYAML []byte

// ErrNotFound is returned when a persona identifier has no registered
// template. This is a configuration error and is never retried.
var ErrNotFound = errors.New("persona not found")

// Persona is a named prompt template with optional style parameters.
// Immutable once loaded.
type Persona struct {
	Key         string
	Description string
	Formality   string
	Params      map[string]string

	tmpl *template.Template
}

// RenderData carries the user and session facts a persona template may use.
type RenderData struct {
	UserName       string
	Locale         string
	Timezone       string
	Units          string
	Currency       string
	DefaultCity    string
	DefaultCountry string
	CurrentDate    string
	CurrentTime    string
	Weekday        string
}

// Render produces the persona's prompt fragment for the given facts.
func (p *Persona) Render(data RenderData) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render persona %q: %w", p.Key, err)
	}
	return buf.String(), nil
}

// Registry is the fixed set of personas known to the process.
// Safe for unlimited concurrent readers; it is never mutated after Load.
type Registry struct {
	personas map[string]*Persona
	keys     []string
}

type yamlFile struct {
	Personas map[string]yamlPersona `yaml:"personas"`
}

type yamlPersona struct {
	Description string            `yaml:"description"`
	Formality   string            `yaml:"formality"`
	Template    string            `yaml:"template"`
	Params      map[string]string `yaml:"params"`
}

// Load parses the embedded persona definitions and compiles every template.
func Load() (*Registry, error) {
	return LoadFromYAML(personasYAML)
}

// LoadFromYAML builds a registry from raw YAML. Exposed for tests and for
// deployments that ship their own persona set.
func LoadFromYAML(data []byte) (*Registry, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("no personas defined")
	}

	reg := &Registry{personas: make(map[string]*Persona, len(file.Personas))}
	for key, yp := range file.Personas {
		if yp.Template == "" {
			return nil, fmt.Errorf("persona %q: template body is empty", key)
		}
		tmpl, err := template.New(key).Option("missingkey=error").Parse(yp.Template)
		if err != nil {
			return nil, fmt.Errorf("persona %q: compile template: %w", key, err)
		}
		reg.personas[key] = &Persona{
			Key:         key,
			Description: yp.Description,
			Formality:   yp.Formality,
			Params:      yp.Params,
			tmpl:        tmpl,
		}
		reg.keys = append(reg.keys, key)
	}
	sort.Strings(reg.keys)
	return reg, nil
}

// Get returns the persona registered under key, or ErrNotFound.
func (r *Registry) Get(key string) (*Persona, error) {
	p, ok := r.personas[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return p, nil
}

// Keys returns the registered persona identifiers in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}
