package management

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/dispatch"
	"github.com/kavelabs/eventbroker/core/eventstore"
	"github.com/kavelabs/eventbroker/core/publish"
	"github.com/kavelabs/eventbroker/core/topic"
)

// DefaultAdminEmail and DefaultAdminPassword are used when the
// corresponding environment variables are unset (spec.md §4.10 "fall-back
// defaults").
const (
	DefaultAdminEmail    = "admin@eventbroker.local"
	DefaultAdminPassword = "changeme"
)

// Bootstrap is the Bootstrap component (C10).
type Bootstrap struct {
	topics      *topic.Service
	events      *eventstore.Store
	publisher   *publish.Service
	registry    *consumer.Registry
	dispatcher  *dispatch.Manager
	projections *Projections
	logger      *zap.Logger

	AdminEmail    string
	AdminPassword string
}

// NewBootstrap constructs a Bootstrapper over the already-constructed
// engine components.
func NewBootstrap(topics *topic.Service, events *eventstore.Store, publisher *publish.Service, registry *consumer.Registry, dispatcher *dispatch.Manager, projections *Projections, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{
		topics: topics, events: events, publisher: publisher, registry: registry,
		dispatcher: dispatcher, projections: projections, logger: logger,
		AdminEmail: DefaultAdminEmail, AdminPassword: DefaultAdminPassword,
	}
}

// Run performs the full startup sequence (spec.md §4.10): ensure system
// topics exist, register projections, seed the system tenant if absent,
// then start the management dispatchers. It is idempotent — running it
// again on an already-initialised store only re-registers projections and
// starts any dispatcher not already running (Testable Property 7).
func (b *Bootstrap) Run() error {
	if err := b.ensureSystemTopics(); err != nil {
		return err
	}

	if err := b.projections.RegisterAll(b.registry); err != nil {
		return fmt.Errorf("register management projections: %w", err)
	}

	seeded, err := b.seedIfAbsent()
	if err != nil {
		return err
	}
	if seeded {
		b.logger.Info("management plane seeded", zap.String("adminEmail", b.AdminEmail))
	}

	for _, t := range ManagementTopics {
		b.dispatcher.StartDispatcher(topic.SystemTenant, topic.ManagementNamespace, t)
	}
	return nil
}

func (b *Bootstrap) ensureSystemTopics() error {
	for _, t := range ManagementTopics {
		exists, err := b.topics.TopicExists(topic.SystemTenant, topic.ManagementNamespace, t)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := b.topics.CreateTopic(uuid.New().String(), "", "", topic.SystemTenant, topic.ManagementNamespace, t, nil); err != nil {
			return fmt.Errorf("create system topic %q: %w", t, err)
		}
	}
	return nil
}

// seedIfAbsent writes the initial tenant/namespace/admin/permission batch
// if no tenant event has ever been recorded. It reports whether it seeded.
func (b *Bootstrap) seedIfAbsent() (bool, error) {
	existing, err := b.events.GetEvents(topic.SystemTenant, topic.ManagementNamespace, TopicTenants, 0, "", 1)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	tenantID := uuid.New().String()
	namespaceID := uuid.New().String()
	adminID := uuid.New().String()

	hash, err := bcrypt.GenerateFromPassword([]byte(b.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	tenantCreated, err := json.Marshal(TenantCreated{ResourceID: tenantID, Name: topic.SystemTenant, CreatedBy: "bootstrap"})
	if err != nil {
		return false, err
	}
	namespaceCreated, err := json.Marshal(NamespaceCreated{
		ResourceID: namespaceID, TenantResourceID: tenantID, Name: topic.ManagementNamespace, CreatedBy: "bootstrap",
	})
	if err != nil {
		return false, err
	}
	userCreated, err := json.Marshal(UserCreated{
		ResourceID: adminID, Email: b.AdminEmail, PasswordHash: string(hash), CreatedBy: "bootstrap",
	})
	if err != nil {
		return false, err
	}
	tenantAssigned, err := json.Marshal(UserTenantAssigned{ResourceID: adminID, TenantResourceID: tenantID})
	if err != nil {
		return false, err
	}
	permissionGranted, err := json.Marshal(PermissionGranted{
		ResourceID:       uuid.New().String(),
		PrincipalID:      adminID,
		ResourceType:     ResourceTenant,
		TargetResourceID: nil,
		TenantResourceID: tenantID,
		Permissions:      []Permission{PermissionAdmin},
		GrantedBy:        "bootstrap",
	})
	if err != nil {
		return false, err
	}

	_, err = b.publisher.Publish(topic.SystemTenant, topic.ManagementNamespace, []publish.Request{
		{Topic: TopicTenants, Type: EventTenantCreated, Payload: tenantCreated},
		{Topic: TopicNamespaces, Type: EventNamespaceCreated, Payload: namespaceCreated},
		{Topic: TopicUsers, Type: EventUserCreated, Payload: userCreated},
		{Topic: TopicUsers, Type: EventUserTenantAssigned, Payload: tenantAssigned},
		{Topic: TopicPermissions, Type: EventPermissionGranted, Payload: permissionGranted},
	})
	if err != nil {
		return false, fmt.Errorf("seed management plane: %w", err)
	}
	return true, nil
}
