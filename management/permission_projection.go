package management

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// Grant is the fold of a single permission.granted event, live until a
// matching permission.revoked event is applied or it expires.
type Grant struct {
	ResourceID          string
	PrincipalID          string
	ResourceType        ResourceType
	TargetResourceID    *string
	TenantResourceID    string
	NamespaceResourceID *string
	TopicResourceID     *string
	Permissions         map[Permission]bool
	ExpiresAt           *time.Time
}

func (g *Grant) expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// PermissionProjection is the in-memory read model for permission grants:
// granted events union in, revoked events remove by the grant's own
// resourceId (spec.md §4.9, Testable Property 3). GetPermissionGrants scans
// the live grant set directly rather than through a separate cache layer —
// a cache is optional per spec.md §4.9, and the grant set is already an
// in-memory map, so a cache would only duplicate invalidation logic.
type PermissionProjection struct {
	mu     sync.RWMutex
	grants map[string]*Grant // keyed by the grant's own resourceId
	now    func() time.Time
}

// NewPermissionProjection constructs an empty projection.
func NewPermissionProjection() *PermissionProjection {
	return &PermissionProjection{
		grants: make(map[string]*Grant),
		now:    time.Now,
	}
}

// Apply folds a single event into the projection.
func (p *PermissionProjection) Apply(ev *eventstore.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case EventPermissionGranted:
		var payload PermissionGranted
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		perms := make(map[Permission]bool, len(payload.Permissions))
		for _, perm := range payload.Permissions {
			perms[perm] = true
		}
		g := &Grant{
			ResourceID:          payload.ResourceID,
			PrincipalID:         payload.PrincipalID,
			ResourceType:        payload.ResourceType,
			TargetResourceID:    payload.TargetResourceID,
			TenantResourceID:    payload.TenantResourceID,
			NamespaceResourceID: payload.NamespaceResourceID,
			TopicResourceID:     payload.TopicResourceID,
			Permissions:         perms,
			ExpiresAt:           payload.ExpiresAt,
		}
		p.grants[g.ResourceID] = g

	case EventPermissionRevoked:
		var payload PermissionRevoked
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		delete(p.grants, payload.ResourceID)
	}
	return nil
}

// Handler adapts Apply to an in-process consumer.Handler.
func (p *PermissionProjection) Handler(_ context.Context, events []*eventstore.Event) error {
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// GetPermissionGrants returns every non-expired grant for principal whose
// scope is compatible with the requested (tenantResourceID,
// namespaceResourceID?, topicResourceID?): equal, or broader via
// inheritance (a grant left unset at a narrower level applies to every
// value at that level, spec.md §4.9/§4.11).
func (p *PermissionProjection) GetPermissionGrants(principal, tenantResourceID, namespaceResourceID, topicResourceID string) []*Grant {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	var out []*Grant
	for _, g := range p.grants {
		if g.PrincipalID != principal || g.TenantResourceID != tenantResourceID {
			continue
		}
		if g.expired(now) {
			continue
		}
		if g.NamespaceResourceID != nil && namespaceResourceID != "" && *g.NamespaceResourceID != namespaceResourceID {
			continue
		}
		if g.TopicResourceID != nil && topicResourceID != "" && *g.TopicResourceID != topicResourceID {
			continue
		}
		out = append(out, g)
	}
	return out
}
