// Package schema validates tool argument payloads against a ParameterSchema
// using github.com/santhosh-tekuri/jsonschema/v5, converting the internal
// schema representation to a JSON-Schema document the validator accepts.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/deepagent-run/deepagent/internal/tool"
)

// ValidationError reports that arguments did not match a tool's declared
// parameter schema. Per the error taxonomy this is reported as a tool
// message; it never aborts the loop.
type ValidationError struct {
	ToolName string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: tool %q: %v", e.ToolName, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks args against the tool's ParameterSchema. A nil schema
// accepts anything.
func Validate(toolName string, params *tool.ParameterSchema, args json.RawMessage) error {
	if params == nil {
		return nil
	}
	doc, err := toJSONSchemaDoc(params)
	if err != nil {
		return &ValidationError{ToolName: toolName, Err: err}
	}

	compiler := jsonschema.NewCompiler()
	const resource = "tool-params.json"
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return &ValidationError{ToolName: toolName, Err: err}
	}
	if err := compiler.AddResource(resource, bytes.NewReader(docBytes)); err != nil {
		return &ValidationError{ToolName: toolName, Err: err}
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		return &ValidationError{ToolName: toolName, Err: err}
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return &ValidationError{ToolName: toolName, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
	}
	if err := sch.Validate(instance); err != nil {
		return &ValidationError{ToolName: toolName, Err: err}
	}
	return nil
}

// toJSONSchemaDoc converts a ParameterSchema into the plain map structure
// jsonschema.Compiler expects, preserving the additional extension keys.
func toJSONSchemaDoc(p *tool.ParameterSchema) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
