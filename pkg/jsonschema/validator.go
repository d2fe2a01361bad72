// Package jsonschema validates response bodies against a JSON Schema.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema, safe for concurrent use.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile compiles a schema document.
func Compile(schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return nil, errors.Wrap(err, "invalid schema")
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "invalid schema")
	}

	return &Schema{schema: schema}, nil
}

// CompileFile reads and compiles a schema file.
func CompileFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema %s", path)
	}

	schema, err := Compile(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}
	return schema, nil
}

// Validate checks body against the schema. It returns nil when the body is
// valid, and one error per violation otherwise. A body that is not JSON is
// reported as a single violation.
func (s *Schema) Validate(body []byte) ValidationErrors {
	var jsonData interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&jsonData); err != nil {
		return ValidationErrors{errors.Wrap(err, "invalid JSON")}
	}

	if err := s.schema.Validate(jsonData); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			if result := extractValidationErrors(validationErr); len(result) > 0 {
				return result
			}
		}
		return ValidationErrors{err}
	}

	return nil
}

// extractValidationErrors extracts all validation errors from a jsonschema.ValidationError
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var result ValidationErrors

	if err.Message != "" {
		result = append(result, errors.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}

	for _, childErr := range err.Causes {
		result = append(result, extractValidationErrors(childErr)...)
	}

	return result
}
