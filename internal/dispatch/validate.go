package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// schemaSet holds the compiled input schema of every tool in a catalog.
type schemaSet map[string]*gojsonschema.Schema

func compileSchemas(tools []protocol.Tool) (schemaSet, error) {
	set := make(schemaSet, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %q: %w", t.Name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", t.Name, err)
		}
		set[t.Name] = schema
	}
	return set, nil
}

// validate checks args against the schema registered for tool.
func (s schemaSet) validate(tool string, args map[string]any) error {
	schema, ok := s[tool]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments for %q: %w", tool, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &InvalidArgumentsError{Tool: tool, Problems: problems}
}
