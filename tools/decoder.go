// Package tools decodes model-produced tool parameters and dispatches tool
// calls against the remote registry, turning every outcome - success,
// malformed parameters, unknown tool, invocation failure - into a
// JSON-serializable tool result the model can read on its next turn.
package tools

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeError reports parameter text that could not be decoded into a
// key/value mapping. It is recovered locally: the dispatcher converts it
// into an error tool result instead of failing the turn.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid tool parameters: %v", e.Err)
	}
	return "invalid tool parameters: not a key/value mapping"
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeParams turns the model's multiline "key: value" parameter text into
// an argument map. This is YAML in practice, which is what the model is
// prompted to produce. Empty or whitespace-only input yields an empty map so
// tools without required parameters can be called with no arguments.
func DecodeParams(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}

	var raw any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &DecodeError{Raw: text, Err: err}
	}

	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		// A bare scalar or list is not an argument mapping.
		return nil, &DecodeError{Raw: text}
	}
}
