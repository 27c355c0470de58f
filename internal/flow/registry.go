// README: Flow registry. Specs are validated at registration and frozen once an invoker exists.
package flow

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateFlowName      = errors.New("duplicate flow name")
	ErrTemplateSchemaMismatch = errors.New("template references undeclared field")
	ErrInvalidSchema          = errors.New("invalid schema")
	ErrTemplateSyntax         = errors.New("template syntax error")
	ErrRegistrySealed         = errors.New("registry is sealed")
	ErrUnknownFlow            = errors.New("unknown flow")
)

// Spec is an immutable flow descriptor.
type Spec struct {
	Name           string
	Description    string
	Input          Schema
	Output         Schema
	Template       *Template
	FailureMessage string
}

// Option customises a Spec at registration.
type Option func(*Spec)

func WithDescription(d string) Option {
	return func(s *Spec) { s.Description = d }
}

// WithFailureMessage sets the user-facing message reported when the flow fails past validation.
func WithFailureMessage(msg string) Option {
	return func(s *Spec) { s.FailureMessage = msg }
}

type Registry struct {
	specs  map[string]*Spec
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register validates and stores a flow. It fails on duplicate names, malformed schemas,
// template syntax errors and placeholders that are not declared input fields.
func (r *Registry) Register(name string, in, out Schema, template string, opts ...Option) error {
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, name)
	}
	if !isIdentifier(name) {
		return fmt.Errorf("%w: invalid flow name %q", ErrInvalidSchema, name)
	}
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFlowName, name)
	}
	if err := in.check(); err != nil {
		return fmt.Errorf("flow %q input: %w", name, err)
	}
	if err := out.check(); err != nil {
		return fmt.Errorf("flow %q output: %w", name, err)
	}
	if len(out) == 0 {
		return fmt.Errorf("flow %q output: %w: no fields", name, ErrInvalidSchema)
	}

	tmpl, err := ParseTemplate(template)
	if err != nil {
		return fmt.Errorf("flow %q: %w", name, err)
	}
	for _, field := range tmpl.Fields() {
		if _, ok := in.Field(field); !ok {
			return fmt.Errorf("flow %q: %w: %q", name, ErrTemplateSchemaMismatch, field)
		}
	}

	spec := &Spec{
		Name:     name,
		Input:    append(Schema(nil), in...),
		Output:   append(Schema(nil), out...),
		Template: tmpl,
	}
	for _, opt := range opts {
		opt(spec)
	}
	if spec.FailureMessage == "" {
		spec.FailureMessage = "Failed to run " + name + ". Please try again."
	}
	r.specs[name] = spec
	return nil
}

// Lookup returns the named spec. Callers must not mutate it.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// List returns registered flow names sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns every registered spec ordered by name.
func (r *Registry) Specs() []*Spec {
	names := r.List()
	out := make([]*Spec, 0, len(names))
	for _, n := range names {
		out = append(out, r.specs[n])
	}
	return out
}

// Seal freezes the registry. After sealing it is safe for concurrent reads.
func (r *Registry) Seal() { r.sealed = true }

func (r *Registry) Sealed() bool { return r.sealed }
