package management

import (
	"github.com/kavelabs/eventbroker/core/consumer"
)

// Projections aggregates every management read model. Each one is
// registered as an InProcess consumer against its owning topic so it
// benefits from the same at-least-once, in-order delivery pipeline as any
// external webhook consumer (spec.md §4.9).
type Projections struct {
	Tenants     *TenantProjection
	Namespaces  *NamespaceProjection
	Users       *UserProjection
	Permissions *PermissionProjection
	APIKeys     *APIKeyProjection
}

// NewProjections constructs an empty set of projections.
func NewProjections() *Projections {
	return &Projections{
		Tenants:     NewTenantProjection(),
		Namespaces:  NewNamespaceProjection(),
		Users:       NewUserProjection(),
		Permissions: NewPermissionProjection(),
		APIKeys:     NewAPIKeyProjection(),
	}
}

// reservedConsumerIDPrefix namespaces the fixed ids used for each projection's
// in-process registration, so re-registering at every boot replaces rather
// than duplicates them.
const reservedConsumerIDPrefix = "$projection-"

// RegisterAll (re-)registers every projection as an InProcess consumer,
// starting every fold from the beginning of its topic. Projections hold no
// persisted cursor: they are rebuilt at every boot (spec.md §6 "Eventually-
// consistent projections are rebuilt at every boot from this data").
func (p *Projections) RegisterAll(registry *consumer.Registry) error {
	bindings := []struct {
		topic   string
		handler consumer.Handler
	}{
		{TopicTenants, p.Tenants.Handler},
		{TopicNamespaces, p.Namespaces.Handler},
		{TopicUsers, p.Users.Handler},
		{TopicPermissions, p.Permissions.Handler},
		{TopicAPIKeys, p.APIKeys.Handler},
	}

	for _, b := range bindings {
		c := consumer.Consumer{
			ID:      reservedConsumerIDPrefix + b.topic,
			Kind:    consumer.KindInProcess,
			Handler: b.handler,
			Topics:  map[string]int64{b.topic: 0},
		}
		if err := registry.Save(c); err != nil {
			return err
		}
	}
	return nil
}
