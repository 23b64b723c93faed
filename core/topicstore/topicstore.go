// Package topicstore implements the Topic Store (C2): one JSON
// configuration document per topic, atomic sequence allocation serialized
// by a per-topic mutex, and additive-only schema updates (spec.md §4.2).
package topicstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/core/schema"
	"github.com/kavelabs/eventbroker/internal/errs"
	"github.com/kavelabs/eventbroker/internal/fsatomic"
)

// SchemaEntry is the on-disk representation of one registered schema.
type SchemaEntry struct {
	EventType string          `json:"eventType"`
	Body      json.RawMessage `json:"body"`
}

// Config is the persisted configuration for one topic, stored as
// "<configRoot>/<tenant>/<namespace>/<topicName>.json".
type Config struct {
	ResourceID          string        `json:"resourceId"`
	TenantResourceID    string        `json:"tenantResourceId"`
	NamespaceResourceID string        `json:"namespaceResourceId"`
	TenantName          string        `json:"tenantName"`
	NamespaceName       string        `json:"namespaceName"`
	Name                string        `json:"name"`
	Sequence            int64         `json:"sequence"`
	Schemas             []SchemaEntry `json:"schemas"`
}

// Store manages topic configuration files rooted at configRoot. Sequence
// increments for a single topic are serialized through a per-topic mutex
// covering the read-modify-write-fsync cycle, so concurrent callers never
// observe the same sequence value (spec.md §4.2 atomicity contract).
type Store struct {
	configRoot string
	logger     *zap.Logger

	mu     sync.Mutex // protects the locks map itself
	locks  map[string]*sync.Mutex
}

// New constructs a Store rooted at configRoot.
func New(configRoot string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		configRoot: configRoot,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

func topicKey(tenant, namespace, name string) string {
	return tenant + "/" + namespace + "/" + name
}

func (s *Store) lockFor(tenant, namespace, name string) *sync.Mutex {
	k := topicKey(tenant, namespace, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

func (s *Store) path(tenant, namespace, name string) string {
	return filepath.Join(s.configRoot, tenant, namespace, name+".json")
}

func (s *Store) read(tenant, namespace, name string) (*Config, error) {
	data, err := os.ReadFile(s.path(tenant, namespace, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindStorageError, "read topic config", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errs.New(errs.KindStorageError, "decode topic config", err)
	}
	return &c, nil
}

func (s *Store) write(c *Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.New(errs.KindStorageError, "encode topic config", err)
	}
	if err := fsatomic.WriteFile(s.path(c.TenantName, c.NamespaceName, c.Name), data, 0o644); err != nil {
		return errs.New(errs.KindStorageError, "persist topic config", err)
	}
	return nil
}

// CreateTopic creates a new topic's configuration file. It fails with
// ErrTopicAlreadyExists if the file is already present.
func (s *Store) CreateTopic(resourceID, tenantResourceID, namespaceResourceID, name string, schemas []schema.Schema, tenantName, namespaceName string) (*Config, error) {
	lock := s.lockFor(tenantName, namespaceName, name)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.read(tenantName, namespaceName, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.ErrTopicAlreadyExists
	}

	entries := make([]SchemaEntry, 0, len(schemas))
	seen := make(map[string]struct{}, len(schemas))
	for _, sc := range schemas {
		if _, dup := seen[sc.EventType]; dup {
			return nil, errs.New(errs.KindInvalidRequest, fmt.Sprintf("duplicate eventType %q in schema set", sc.EventType), errs.ErrIllegalArgument)
		}
		seen[sc.EventType] = struct{}{}
		entries = append(entries, SchemaEntry{EventType: sc.EventType, Body: sc.Body})
	}

	c := &Config{
		ResourceID:          resourceID,
		TenantResourceID:    tenantResourceID,
		NamespaceResourceID: namespaceResourceID,
		TenantName:          tenantName,
		NamespaceName:       namespaceName,
		Name:                name,
		Sequence:            0,
		Schemas:             entries,
	}
	if err := s.write(c); err != nil {
		return nil, err
	}
	s.logger.Info("topic created", zap.String("topic", name), zap.String("tenant", tenantName), zap.String("namespace", namespaceName))
	return c, nil
}

// GetTopic returns the topic's configuration, or nil if it does not exist.
func (s *Store) GetTopic(tenantName, namespaceName, name string) (*Config, error) {
	return s.read(tenantName, namespaceName, name)
}

// TopicExists reports whether a topic configuration file exists.
func (s *Store) TopicExists(tenantName, namespaceName, name string) (bool, error) {
	c, err := s.read(tenantName, namespaceName, name)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// GetAllTopics walks configRoot/tenant/namespace and returns every topic
// configuration found there.
func (s *Store) GetAllTopics(tenantName, namespaceName string) ([]*Config, error) {
	dir := filepath.Join(s.configRoot, tenantName, namespaceName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindStorageError, "list topic configs", err)
	}

	var out []*Config
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".json")]
		c, err := s.read(tenantName, namespaceName, name)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpdateSchemas applies an additive-only schema update: it rejects with
// ErrIllegalArgument before any write if any existing eventType is missing
// from newSchemas, or if newSchemas contains a duplicate eventType.
func (s *Store) UpdateSchemas(tenantName, namespaceName, name string, newSchemas []schema.Schema) (*Config, error) {
	lock := s.lockFor(tenantName, namespaceName, name)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.read(tenantName, namespaceName, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.ErrTopicNotFound
	}

	incoming := make(map[string]json.RawMessage, len(newSchemas))
	for _, sc := range newSchemas {
		if _, dup := incoming[sc.EventType]; dup {
			return nil, errs.New(errs.KindInvalidRequest, fmt.Sprintf("duplicate eventType %q in schema update", sc.EventType), errs.ErrIllegalArgument)
		}
		incoming[sc.EventType] = sc.Body
	}

	for _, existing := range c.Schemas {
		if _, ok := incoming[existing.EventType]; !ok {
			return nil, errs.New(errs.KindInvalidRequest,
				fmt.Sprintf("schema update for topic %q must retain existing eventType %q", name, existing.EventType), errs.ErrIllegalArgument)
		}
	}

	merged := make([]SchemaEntry, 0, len(incoming))
	for et, body := range incoming {
		merged = append(merged, SchemaEntry{EventType: et, Body: body})
	}
	c.Schemas = merged

	if err := s.write(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetAndIncrementSequence atomically allocates the next sequence number for
// a topic, persisting the new counter before returning it. Implementations
// must not advance the in-memory counter past what was durably written
// (spec.md §4.2 edge-case policy).
func (s *Store) GetAndIncrementSequence(tenantName, namespaceName, name string) (int64, error) {
	lock := s.lockFor(tenantName, namespaceName, name)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.read(tenantName, namespaceName, name)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, errs.ErrTopicNotFound
	}

	next := c.Sequence + 1
	c.Sequence = next
	if err := s.write(c); err != nil {
		return 0, errs.New(errs.KindStorageError, "persist incremented sequence", err)
	}
	return next, nil
}
