package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/internal/errs"
)

type key struct {
	topic     string
	eventType string
}

// Registry compiles and caches JSON-Schema documents keyed by
// (topic, eventType) and validates already-parsed payloads against them.
// Compilation is isolated from validation so the hot publish path never
// re-parses a schema document per event (spec.md §4.1).
type Registry struct {
	mu      sync.RWMutex
	schemas map[key]*gojsonschema.Schema
	logger  *zap.Logger
}

// NewRegistry constructs an empty Schema Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		schemas: make(map[key]*gojsonschema.Schema),
		logger:  logger,
	}
}

// RegisterSchemas compiles each schema and stores it under
// (topic, eventType). Re-registration replaces the compiled form, matching
// spec.md's "re-registration replaces the compiled form".
func (r *Registry) RegisterSchemas(topic string, schemas []Schema) error {
	compiled := make(map[key]*gojsonschema.Schema, len(schemas))
	for _, s := range schemas {
		if err := s.validateShape(); err != nil {
			return errs.New(errs.KindInvalidRequest, "invalid schema", err)
		}
		loader := gojsonschema.NewBytesLoader(s.Body)
		cs, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return errs.New(errs.KindInvalidRequest, fmt.Sprintf("compile schema %q", s.EventType), err)
		}
		compiled[key{topic: topic, eventType: s.EventType}] = cs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, cs := range compiled {
		r.schemas[k] = cs
	}
	r.logger.Debug("schemas registered", zap.String("topic", topic), zap.Int("count", len(schemas)))
	return nil
}

// HasSchema reports whether a compiled schema exists for (topic, eventType).
func (r *Registry) HasSchema(topic, eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[key{topic: topic, eventType: eventType}]
	return ok
}

// Validate checks payload (already parsed into a Go value: map, slice, or
// scalar) against the compiled schema for (topic, eventType). It returns
// (nil, nil) on success; on failure it returns the issues, each with a
// JSON-pointer path, together with a schema-validation error. A missing
// schema is reported as a schema-not-found error.
func (r *Registry) Validate(topic, eventType string, payload any) ([]Issue, error) {
	r.mu.RLock()
	cs, ok := r.schemas[key{topic: topic, eventType: eventType}]
	r.mu.RUnlock()

	if !ok {
		return nil, errs.New(errs.KindSchemaNotFound,
			fmt.Sprintf("no schema registered for topic %q event %q", topic, eventType), nil)
	}

	result, err := cs.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return nil, errs.New(errs.KindSchemaValidation, "schema validation failed to run", err)
	}
	if result.Valid() {
		return nil, nil
	}

	issues := make([]Issue, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		path := "/"
		if f := e.Field(); f != "(root)" {
			path += strings.ReplaceAll(f, ".", "/")
		}
		issues = append(issues, Issue{
			Path:    path,
			Message: e.Description(),
		})
	}
	return issues, errs.New(errs.KindSchemaValidation,
		fmt.Sprintf("payload for %s/%s failed schema validation", topic, eventType), nil)
}
