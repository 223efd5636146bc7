// Package schemavalidate validates decoded JSON values against a JSON
// Schema document expressed as a Go-native map literal, the same shape
// strategy_selector.go and toolregistry define their schemas in.
package schemavalidate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Against compiles schema and validates instance against it. schema is a
// Go literal (map[string]any with []string enum/required slices); it is
// round-tripped through encoding/json so the compiler sees the
// map[string]interface{}/[]interface{} shapes it requires.
func Against(schema map[string]any, instance any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("schemavalidate: marshal schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schemavalidate: decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("schemavalidate: add resource: %w", err)
	}
	sch, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("schemavalidate: compile schema: %w", err)
	}

	instanceBytes, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("schemavalidate: marshal instance: %w", err)
	}
	instanceDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(instanceBytes))
	if err != nil {
		return fmt.Errorf("schemavalidate: decode instance: %w", err)
	}

	if err := sch.Validate(instanceDoc); err != nil {
		return fmt.Errorf("schemavalidate: %w", err)
	}
	return nil
}
