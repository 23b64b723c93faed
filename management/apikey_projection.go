package management

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

// APIKeyState is the fold of one API key's event stream.
type APIKeyState struct {
	ResourceID  string
	PrincipalID string
	KeyHash     string
	Revoked     bool
}

// APIKeyProjection is the in-memory read model for API keys, rebuilt by
// folding the "api-keys" topic (spec.md §4.9).
type APIKeyProjection struct {
	mu   sync.RWMutex
	byID map[string]*APIKeyState
}

// NewAPIKeyProjection constructs an empty projection.
func NewAPIKeyProjection() *APIKeyProjection {
	return &APIKeyProjection{byID: make(map[string]*APIKeyState)}
}

// Apply folds a single event into the projection.
func (p *APIKeyProjection) Apply(ev *eventstore.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case EventAPIKeyCreated:
		var payload APIKeyCreated
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		p.byID[payload.ResourceID] = &APIKeyState{
			ResourceID: payload.ResourceID, PrincipalID: payload.PrincipalID, KeyHash: payload.KeyHash,
		}

	case EventAPIKeyRevoked:
		var payload APIKeyRevoked
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		if k, ok := p.byID[payload.ResourceID]; ok {
			k.Revoked = true
		}
	}
	return nil
}

// Handler adapts Apply to an in-process consumer.Handler.
func (p *APIKeyProjection) Handler(_ context.Context, events []*eventstore.Event) error {
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// ByResourceID returns the API key state for id.
func (p *APIKeyProjection) ByResourceID(id string) (*APIKeyState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.byID[id]
	return k, ok
}
