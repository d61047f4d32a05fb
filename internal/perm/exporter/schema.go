// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package exporter

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var (
	schemaOnce sync.Once
	schema     *jschema.Schema
	schemaErr  error
)

// SchemaID is the $id stamped on the generated schema.
const SchemaID = "https://permgate.dev/schemas/export.schema.json"

// GenerateSchema reflects the export Document into a JSON Schema.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&Document{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "PermGate Export"
	s.Description = "Schema for permgate export documents"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates a YAML export document against the generated
// schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code("IMPORT_FAILED").Errorf("document is empty")
	}

	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.Code("IMPORT_FAILED").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(convertToJSONTypes(yamlData)); err != nil {
		return oops.Code("IMPORT_SCHEMA_FAILED").Wrap(err)
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		var raw []byte
		raw, schemaErr = GenerateSchema()
		if schemaErr != nil {
			return
		}

		var schemaData any
		if schemaErr = json.Unmarshal(raw, &schemaData); schemaErr != nil {
			return
		}

		c := jschema.NewCompiler()
		if schemaErr = c.AddResource("export.schema.json", schemaData); schemaErr != nil {
			return
		}
		schema, schemaErr = c.Compile("export.schema.json")
	})
	if schemaErr != nil {
		return nil, oops.Code("SCHEMA_FAILED").Wrap(schemaErr)
	}
	return schema, nil
}

// convertToJSONTypes normalizes YAML-decoded values into the types the
// schema validator expects.
func convertToJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, inner := range val {
			result[k] = convertToJSONTypes(inner)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, inner := range val {
			result[i] = convertToJSONTypes(inner)
		}
		return result
	default:
		return val
	}
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, oops.Code("IMPORT_FAILED").With("user", s).Wrap(err)
	}
	return id, nil
}
