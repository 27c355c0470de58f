// README: YAML flow catalogue. Decodes flow definitions and registers them.
package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldDef is the catalogue form of a Field.
type FieldDef struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description,omitempty"`
	Required    bool     `yaml:"required,omitempty"`
	Default     string   `yaml:"default,omitempty"`
	MinLength   int      `yaml:"min_length,omitempty"`
	MaxLength   int      `yaml:"max_length,omitempty"`
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	Values      []string `yaml:"values,omitempty"`
}

func (d FieldDef) Field() Field {
	return Field{
		Name:        d.Name,
		Type:        FieldType(d.Type),
		Description: d.Description,
		Required:    d.Required,
		Default:     d.Default,
		MinLength:   d.MinLength,
		MaxLength:   d.MaxLength,
		Min:         d.Min,
		Max:         d.Max,
		Values:      d.Values,
	}
}

type Definition struct {
	Name           string     `yaml:"name"`
	Description    string     `yaml:"description"`
	FailureMessage string     `yaml:"failure_message"`
	Input          []FieldDef `yaml:"input"`
	Output         []FieldDef `yaml:"output"`
	Template       string     `yaml:"template"`
}

type catalogue struct {
	Flows []Definition `yaml:"flows"`
}

// LoadDefinitions decodes a catalogue document with a top-level "flows" list.
func LoadDefinitions(data []byte) ([]Definition, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode flow catalogue: %w", err)
	}
	if len(c.Flows) == 0 {
		return nil, fmt.Errorf("%w: catalogue declares no flows", ErrInvalidSchema)
	}
	return c.Flows, nil
}

func schemaOf(defs []FieldDef) Schema {
	s := make(Schema, 0, len(defs))
	for _, d := range defs {
		s = append(s, d.Field())
	}
	return s
}

// RegisterAll registers every definition, stopping at the first configuration error.
func (r *Registry) RegisterAll(defs []Definition) error {
	for _, d := range defs {
		err := r.Register(d.Name, schemaOf(d.Input), schemaOf(d.Output), d.Template,
			WithDescription(d.Description),
			WithFailureMessage(d.FailureMessage),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
