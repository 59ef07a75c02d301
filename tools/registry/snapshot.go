package registry

import (
	"gopkg.in/yaml.v3"
)

// Descriptor describes one callable tool as advertised by the remote
// registry. Schemas are kept as generic maps so the snapshot can be
// re-rendered for the model without depending on any particular schema
// representation.
type Descriptor struct {
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	InputSchema  map[string]any `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
	OutputSchema map[string]any `yaml:"outputSchema,omitempty" json:"outputSchema,omitempty"`
}

// RequiredParams returns the parameter names the tool's input schema marks
// as required, in schema order.
func (d Descriptor) RequiredParams() []string {
	raw, ok := d.InputSchema["required"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var required []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			required = append(required, s)
		}
	}
	return required
}

// Snapshot is an immutable view of the registry at fetch time: the ordered
// descriptor list plus its rendered YAML form, which is what gets embedded
// into the model's system context. Never mutated after construction; a
// refresh produces a new Snapshot.
type Snapshot struct {
	Tools   []Descriptor
	Context string

	index map[string]Descriptor
}

// NewSnapshot builds a Snapshot from the given descriptors, rendering the
// system-context text and indexing the tools by name.
func NewSnapshot(tools []Descriptor) *Snapshot {
	s := &Snapshot{
		Tools:   tools,
		Context: renderContext(tools),
		index:   make(map[string]Descriptor, len(tools)),
	}
	for _, t := range tools {
		s.index[t.Name] = t
	}
	return s
}

// EmptySnapshot returns a snapshot with no tools. Used when the registry is
// unreachable so a turn can continue with tool use disabled.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil)
}

// Lookup returns the descriptor for a tool name.
func (s *Snapshot) Lookup(name string) (Descriptor, bool) {
	d, ok := s.index[name]
	return d, ok
}

// Empty reports whether the snapshot carries no tools.
func (s *Snapshot) Empty() bool {
	return len(s.Tools) == 0
}

// renderContext serializes the descriptors to YAML, the form the original
// registry listing is shown to the model in. An empty registry renders as
// the YAML empty list so the prompt section is still well-formed.
func renderContext(tools []Descriptor) string {
	if len(tools) == 0 {
		return "[]"
	}
	out, err := yaml.Marshal(tools)
	if err != nil {
		return "[]"
	}
	return string(out)
}

// ParseContext parses a rendered registry context back into descriptors.
// The dispatcher-facing fields (names and schemas) survive the round trip.
func ParseContext(text string) ([]Descriptor, error) {
	var tools []Descriptor
	if err := yaml.Unmarshal([]byte(text), &tools); err != nil {
		return nil, err
	}
	return tools, nil
}
