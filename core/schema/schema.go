// Package schema implements the Schema Registry (C1): compiling JSON-Schema
// documents per (topic, eventType) and validating already-decoded payloads
// against them.
package schema

import (
	"encoding/json"
	"fmt"
)

// Issue describes a single validation failure at a JSON-pointer path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Schema is the JSON-Schema document registered for one eventType within a
// topic. Body must describe an object schema with type "object"
// (spec.md §3); its properties/required keywords are compiled as written
// and are not themselves checked at registration.
type Schema struct {
	EventType string          `json:"eventType"`
	Body      json.RawMessage `json:"body"`
}

// Draft returns the `$schema` draft URI declared in the schema body, if any.
func (s Schema) Draft() string {
	var probe struct {
		Schema string `json:"$schema"`
	}
	if err := json.Unmarshal(s.Body, &probe); err != nil {
		return ""
	}
	return probe.Schema
}

// validateShape checks that the schema body is well-formed enough to
// register: it must decode as a JSON object and declare type "object".
func (s Schema) validateShape() error {
	var probe struct {
		Type string `json:"type"`
	}
	if len(s.Body) == 0 {
		return fmt.Errorf("schema %q: empty body", s.EventType)
	}
	if err := json.Unmarshal(s.Body, &probe); err != nil {
		return fmt.Errorf("schema %q: not a JSON object: %w", s.EventType, err)
	}
	if probe.Type != "object" {
		return fmt.Errorf("schema %q: type must be \"object\", got %q", s.EventType, probe.Type)
	}
	return nil
}
