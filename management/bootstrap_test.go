package management

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/dispatch"
	"github.com/kavelabs/eventbroker/core/eventstore"
	"github.com/kavelabs/eventbroker/core/publish"
	"github.com/kavelabs/eventbroker/core/schema"
	"github.com/kavelabs/eventbroker/core/topic"
	"github.com/kavelabs/eventbroker/core/topicstore"
)

type testEngine struct {
	topics      *topic.Service
	events      *eventstore.Store
	registry    *consumer.Registry
	dispatcher  *dispatch.Manager
	publisher   *publish.Service
	projections *Projections
	bootstrap   *Bootstrap
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := topicstore.New(t.TempDir(), nil)
	registry := schema.NewRegistry(nil)
	topics := topic.New(store, registry, nil)

	events := eventstore.New(t.TempDir(), nil)
	consumers, err := consumer.Open(filepath.Join(t.TempDir(), "consumers.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { consumers.Close() })

	manager := dispatch.NewManager(events, consumers, nil, nil)
	t.Cleanup(manager.StopAllDispatchers)

	publisher := publish.New(topics, events, manager, nil)
	projections := NewProjections()
	bootstrap := NewBootstrap(topics, events, publisher, consumers, manager, projections, nil)
	bootstrap.AdminEmail = "root@x"
	bootstrap.AdminPassword = "pw"

	return &testEngine{
		topics: topics, events: events, registry: consumers, dispatcher: manager,
		publisher: publisher, projections: projections, bootstrap: bootstrap,
	}
}

func runDispatchersOnce(t *testing.T, e *testEngine) {
	t.Helper()
	for _, tp := range ManagementTopics {
		d := dispatch.NewDispatcher(topic.SystemTenant, topic.ManagementNamespace, tp, e.events, e.registry, nil)
		d.TickOnce()
	}
}

func TestBootstrapSeedsSystemTenant(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.bootstrap.Run())
	runDispatchersOnce(t, e)

	tenant, ok := e.projections.Tenants.ByName(topic.SystemTenant)
	require.True(t, ok)

	ns, ok := e.projections.Namespaces.ByName(tenant.ResourceID, topic.ManagementNamespace)
	require.True(t, ok)
	assert.Equal(t, topic.ManagementNamespace, ns.Name)

	admin, ok := e.projections.Users.ByEmail("root@x")
	require.True(t, ok)
	assert.True(t, admin.Tenants[tenant.ResourceID])
}

func TestBootstrapIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.bootstrap.Run())
	runDispatchersOnce(t, e)

	latestBefore, err := e.events.GetLatestEventID(topic.SystemTenant, topic.ManagementNamespace, TopicTenants)
	require.NoError(t, err)

	require.NoError(t, e.bootstrap.Run())
	runDispatchersOnce(t, e)

	latestAfter, err := e.events.GetLatestEventID(topic.SystemTenant, topic.ManagementNamespace, TopicTenants)
	require.NoError(t, err)

	assert.Equal(t, latestBefore, latestAfter, "re-running bootstrap must not append another tenant.created")
}

func TestBootstrapGrantsAdminScopeWidePermission(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.bootstrap.Run())
	runDispatchersOnce(t, e)

	admin, ok := e.projections.Users.ByEmail("root@x")
	require.True(t, ok)

	auth := NewAuthorizer(e.projections, e.topics)
	allowed, err := auth.CheckPermission(admin.ResourceID, ResourceTenant, "any-future-tenant", PermissionRead, topic.SystemTenant, "", "")
	require.NoError(t, err)
	assert.True(t, allowed)
}
