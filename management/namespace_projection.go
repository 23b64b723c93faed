package management

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// NamespaceState is the fold of one namespace's event stream.
type NamespaceState struct {
	ResourceID       string
	TenantResourceID string
	Name             string
	Deleted          bool
}

type namespaceNameKey struct {
	tenantResourceID string
	name             string
}

// NamespaceProjection is the in-memory read model for namespaces, rebuilt
// by folding the "namespaces" topic (spec.md §4.9).
type NamespaceProjection struct {
	mu     sync.RWMutex
	byID   map[string]*NamespaceState
	byName map[namespaceNameKey]string
}

// NewNamespaceProjection constructs an empty projection.
func NewNamespaceProjection() *NamespaceProjection {
	return &NamespaceProjection{byID: make(map[string]*NamespaceState), byName: make(map[namespaceNameKey]string)}
}

// Apply folds a single event into the projection.
func (p *NamespaceProjection) Apply(ev *eventstore.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case EventNamespaceCreated:
		var payload NamespaceCreated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		p.byID[payload.ResourceID] = &NamespaceState{
			ResourceID: payload.ResourceID, TenantResourceID: payload.TenantResourceID, Name: payload.Name,
		}
		p.byName[namespaceNameKey{payload.TenantResourceID, payload.Name}] = payload.ResourceID

	case EventNamespaceUpdated:
		var payload NamespaceUpdated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if n, ok := p.byID[payload.ResourceID]; ok {
			delete(p.byName, namespaceNameKey{n.TenantResourceID, n.Name})
			n.Name = payload.Name
			if !n.Deleted {
				p.byName[namespaceNameKey{n.TenantResourceID, n.Name}] = n.ResourceID
			}
		}

	case EventNamespaceDeleted:
		var payload NamespaceDeleted
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if n, ok := p.byID[payload.ResourceID]; ok {
			n.Deleted = true
			delete(p.byName, namespaceNameKey{n.TenantResourceID, n.Name})
		}
	}
	return nil
}

// Handler adapts Apply to an in-process consumer.Handler.
func (p *NamespaceProjection) Handler(_ context.Context, events []*eventstore.Event) error {
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// ByResourceID returns the namespace state for id, including tombstones.
func (p *NamespaceProjection) ByResourceID(id string) (*NamespaceState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.byID[id]
	return n, ok
}

// ByName resolves a live namespace scoped to a tenant by name.
func (p *NamespaceProjection) ByName(tenantResourceID, name string) (*NamespaceState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byName[namespaceNameKey{tenantResourceID, name}]
	if !ok {
		return nil, false
	}
	n, ok := p.byID[id]
	return n, ok
}
