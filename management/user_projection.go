package management

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// UserState is the fold of one user's event stream.
type UserState struct {
	ResourceID   string
	Email        string
	PasswordHash string
	Tenants      map[string]bool // tenantResourceId -> assigned
}

// UserProjection is the in-memory read model for users, rebuilt by folding
// the "users" topic (spec.md §4.9).
type UserProjection struct {
	mu      sync.RWMutex
	byID    map[string]*UserState
	byEmail map[string]string
}

// NewUserProjection constructs an empty projection.
func NewUserProjection() *UserProjection {
	return &UserProjection{byID: make(map[string]*UserState), byEmail: make(map[string]string)}
}

// Apply folds a single event into the projection.
func (p *UserProjection) Apply(ev *eventstore.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case EventUserCreated:
		var payload UserCreated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		p.byID[payload.ResourceID] = &UserState{
			ResourceID: payload.ResourceID, Email: payload.Email,
			PasswordHash: payload.PasswordHash, Tenants: make(map[string]bool),
		}
		p.byEmail[payload.Email] = payload.ResourceID

	case EventUserUpdated:
		var payload UserUpdated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if u, ok := p.byID[payload.ResourceID]; ok {
			delete(p.byEmail, u.Email)
			u.Email = payload.Email
			p.byEmail[u.Email] = u.ResourceID
		}

	case EventUserPasswordChanged:
		var payload UserPasswordChanged
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if u, ok := p.byID[payload.ResourceID]; ok {
			u.PasswordHash = payload.PasswordHash
		}

	case EventUserTenantAssigned:
		var payload UserTenantAssigned
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if u, ok := p.byID[payload.ResourceID]; ok {
			u.Tenants[payload.TenantResourceID] = true
		}

	case EventUserTenantRemoved:
		var payload UserTenantRemoved
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if u, ok := p.byID[payload.ResourceID]; ok {
			delete(u.Tenants, payload.TenantResourceID)
		}
	}
	return nil
}

// Handler adapts Apply to an in-process consumer.Handler.
func (p *UserProjection) Handler(_ context.Context, events []*eventstore.Event) error {
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// ByResourceID returns the user state for id.
func (p *UserProjection) ByResourceID(id string) (*UserState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.byID[id]
	return u, ok
}

// ByEmail resolves a user by email.
func (p *UserProjection) ByEmail(email string) (*UserState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byEmail[email]
	if !ok {
		return nil, false
	}
	u, ok := p.byID[id]
	return u, ok
}
