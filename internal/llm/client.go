package llm

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Generator issues exactly one schema-constrained generation call against an
// inference backend. Implementations never retry; retry policy belongs to the
// caller.
type Generator interface {
	// GenerateText combines the system and user prompts into one request and
	// returns the raw generated text. When format is non-nil it is attached
	// as a binding output-shape constraint; callers must still re-parse the
	// reply as untrusted input.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string, format *jsonschema.Schema) (string, error)
}

// SchemaFor reflects a JSON schema from a Go struct, the shape handed to the
// backend as the output constraint.
func SchemaFor(v any) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: false,
	}
	return reflector.Reflect(v)
}
