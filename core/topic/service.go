// Package topic composes the Topic Store (C2) and the Schema Registry (C1)
// so that a topic's persisted schema set and its compiled validation forms
// never drift apart (spec.md §3 "Schema Registry ... reloaded
// deterministically from Topic Store at startup").
package topic

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/core/schema"
	"github.com/kavelabs/eventbroker/core/topicstore"
)

// Service is the single entry point callers use to create and evolve
// topics: every mutation that touches the persisted schema set also
// recompiles the registry's validation forms under the same key.
type Service struct {
	store    *topicstore.Store
	registry *schema.Registry
	logger   *zap.Logger
}

// New constructs a Service over an already-opened Topic Store and Schema
// Registry.
func New(store *topicstore.Store, registry *schema.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, registry: registry, logger: logger}
}

// Key is the Schema Registry key for a tenant/namespace-scoped topic. The
// registry itself only knows about flat topic keys (spec.md §4.1); this
// qualifies them so the same topic name in different tenants never
// collides.
func Key(tenant, namespace, name string) string {
	return tenant + "/" + namespace + "/" + name
}

func joinSchemas(entries []topicstore.SchemaEntry) []schema.Schema {
	out := make([]schema.Schema, len(entries))
	for i, e := range entries {
		out[i] = schema.Schema{EventType: e.EventType, Body: e.Body}
	}
	return out
}

// CreateTopic persists a new topic's configuration and compiles its schema
// set into the registry under the same key.
func (s *Service) CreateTopic(resourceID, tenantResourceID, namespaceResourceID, tenantName, namespaceName, name string, schemas []schema.Schema) (*topicstore.Config, error) {
	cfg, err := s.store.CreateTopic(resourceID, tenantResourceID, namespaceResourceID, name, schemas, tenantName, namespaceName)
	if err != nil {
		return nil, err
	}
	if err := s.registry.RegisterSchemas(Key(tenantName, namespaceName, name), schemas); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateSchemas applies an additive-only schema update and re-registers the
// resulting (grown) schema set with the registry.
func (s *Service) UpdateSchemas(tenantName, namespaceName, name string, newSchemas []schema.Schema) (*topicstore.Config, error) {
	cfg, err := s.store.UpdateSchemas(tenantName, namespaceName, name, newSchemas)
	if err != nil {
		return nil, err
	}
	if err := s.registry.RegisterSchemas(Key(tenantName, namespaceName, name), joinSchemas(cfg.Schemas)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetTopic, GetAllTopics and TopicExists pass straight through to the
// underlying Topic Store; they do not touch the registry.
func (s *Service) GetTopic(tenantName, namespaceName, name string) (*topicstore.Config, error) {
	return s.store.GetTopic(tenantName, namespaceName, name)
}

func (s *Service) GetAllTopics(tenantName, namespaceName string) ([]*topicstore.Config, error) {
	return s.store.GetAllTopics(tenantName, namespaceName)
}

func (s *Service) TopicExists(tenantName, namespaceName, name string) (bool, error) {
	return s.store.TopicExists(tenantName, namespaceName, name)
}

// GetAndIncrementSequence passes straight through to the Topic Store.
func (s *Service) GetAndIncrementSequence(tenantName, namespaceName, name string) (int64, error) {
	return s.store.GetAndIncrementSequence(tenantName, namespaceName, name)
}

// Registry exposes the underlying Schema Registry for validation callers.
func (s *Service) Registry() *schema.Registry { return s.registry }

// LoadAll recompiles every persisted topic's schema set into the registry.
// Call once at startup for every known tenant/namespace pair so the
// registry's state is deterministically reloaded from the Topic Store
// (spec.md §3).
func (s *Service) LoadAll(tenantName, namespaceName string) error {
	configs, err := s.store.GetAllTopics(tenantName, namespaceName)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := s.registry.RegisterSchemas(Key(tenantName, namespaceName, cfg.Name), joinSchemas(cfg.Schemas)); err != nil {
			return err
		}
	}
	return nil
}

// IsManagementScope reports whether (tenant, namespace) is the reserved
// system management plane, whose topics bypass schema validation entirely
// (spec.md §4.10, SPEC_FULL.md Open Question 1).
func IsManagementScope(tenant, namespace string) bool {
	return tenant == SystemTenant && namespace == ManagementNamespace
}

// SystemTenant and ManagementNamespace are the reserved identifiers for the
// event-sourced management plane (spec.md §4.8).
const (
	SystemTenant        = "$system"
	ManagementNamespace = "$management"
)

// DefaultTenant and DefaultNamespace are used when multi-tenancy is
// disabled (spec.md §6).
const (
	DefaultTenant   = "default"
	DefaultNamespace = "default"
)

// QualifiedTopic renders a fully-qualified "<tenant>/<namespace>/<topic>"
// path.
func QualifiedTopic(tenant, namespace, name string) string {
	return strings.Join([]string{tenant, namespace, name}, "/")
}
