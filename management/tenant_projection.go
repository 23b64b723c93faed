package management

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// TenantState is the fold of one tenant's event stream.
type TenantState struct {
	ResourceID string
	Name       string
	Deleted    bool
}

// TenantProjection is the in-memory read model for tenants, rebuilt by
// folding the "tenants" topic (spec.md §4.9).
type TenantProjection struct {
	mu     sync.RWMutex
	byID   map[string]*TenantState
	byName map[string]string // name -> resourceId, excludes tombstoned tenants
}

// NewTenantProjection constructs an empty projection.
func NewTenantProjection() *TenantProjection {
	return &TenantProjection{byID: make(map[string]*TenantState), byName: make(map[string]string)}
}

// Apply folds a single event into the projection.
func (p *TenantProjection) Apply(ev *eventstore.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case EventTenantCreated:
		var payload TenantCreated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		p.byID[payload.ResourceID] = &TenantState{ResourceID: payload.ResourceID, Name: payload.Name}
		p.byName[payload.Name] = payload.ResourceID

	case EventTenantUpdated:
		var payload TenantUpdated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if t, ok := p.byID[payload.ResourceID]; ok {
			delete(p.byName, t.Name)
			t.Name = payload.Name
			if !t.Deleted {
				p.byName[t.Name] = t.ResourceID
			}
		}

	case EventTenantDeleted:
		var payload TenantDeleted
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if t, ok := p.byID[payload.ResourceID]; ok {
			t.Deleted = true
			delete(p.byName, t.Name)
		}
	}
	return nil
}

// Handler adapts Apply to an in-process consumer.Handler.
func (p *TenantProjection) Handler(_ context.Context, events []*eventstore.Event) error {
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// ByResourceID returns the tenant state for id, including tombstones.
func (p *TenantProjection) ByResourceID(id string) (*TenantState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.byID[id]
	return t, ok
}

// ByName resolves a live (non-tombstoned) tenant by name.
func (p *TenantProjection) ByName(name string) (*TenantState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	t, ok := p.byID[id]
	return t, ok
}
