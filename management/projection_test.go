package management

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavelabs/eventbroker/core/eventstore"
)

func marshalEvent(t *testing.T, seq int64, eventType string, payload any) *eventstore.Event {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &eventstore.Event{Sequence: seq, Type: eventType, Payload: body}
}

func TestTenantProjectionCreateRenameDelete(t *testing.T) {
	p := NewTenantProjection()
	require.NoError(t, p.Apply(marshalEvent(t, 1, EventTenantCreated, TenantCreated{ResourceID: "t1", Name: "acme"})))

	tenant, ok := p.ByName("acme")
	require.True(t, ok)
	assert.Equal(t, "t1", tenant.ResourceID)

	require.NoError(t, p.Apply(marshalEvent(t, 2, EventTenantUpdated, TenantUpdated{ResourceID: "t1", Name: "acme-corp"})))
	_, ok = p.ByName("acme")
	assert.False(t, ok, "old name must no longer resolve after rename")
	renamed, ok := p.ByName("acme-corp")
	require.True(t, ok)
	assert.Equal(t, "t1", renamed.ResourceID)

	require.NoError(t, p.Apply(marshalEvent(t, 3, EventTenantDeleted, TenantDeleted{ResourceID: "t1"})))
	_, ok = p.ByName("acme-corp")
	assert.False(t, ok, "deleted tenant must not resolve by name")

	tombstone, ok := p.ByResourceID("t1")
	require.True(t, ok, "tombstoned tenant is still resolvable by id")
	assert.True(t, tombstone.Deleted)
}

func TestNamespaceProjectionScopedByTenant(t *testing.T) {
	p := NewNamespaceProjection()
	require.NoError(t, p.Apply(marshalEvent(t, 1, EventNamespaceCreated, NamespaceCreated{
		ResourceID: "n1", TenantResourceID: "t1", Name: "default",
	})))
	require.NoError(t, p.Apply(marshalEvent(t, 2, EventNamespaceCreated, NamespaceCreated{
		ResourceID: "n2", TenantResourceID: "t2", Name: "default",
	})))

	ns1, ok := p.ByName("t1", "default")
	require.True(t, ok)
	assert.Equal(t, "n1", ns1.ResourceID)

	ns2, ok := p.ByName("t2", "default")
	require.True(t, ok)
	assert.Equal(t, "n2", ns2.ResourceID, "same namespace name under a different tenant must resolve independently")

	require.NoError(t, p.Apply(marshalEvent(t, 3, EventNamespaceDeleted, NamespaceDeleted{ResourceID: "n1"})))
	_, ok = p.ByName("t1", "default")
	assert.False(t, ok)
	_, ok = p.ByName("t2", "default")
	assert.True(t, ok, "deleting one tenant's namespace must not affect another tenant's namespace of the same name")
}

func TestUserProjectionLifecycle(t *testing.T) {
	p := NewUserProjection()
	require.NoError(t, p.Apply(marshalEvent(t, 1, EventUserCreated, UserCreated{
		ResourceID: "u1", Email: "a@example.com", PasswordHash: "hash1",
	})))

	u, ok := p.ByEmail("a@example.com")
	require.True(t, ok)
	assert.Equal(t, "hash1", u.PasswordHash)
	assert.Empty(t, u.Tenants)

	require.NoError(t, p.Apply(marshalEvent(t, 2, EventUserTenantAssigned, UserTenantAssigned{ResourceID: "u1", TenantResourceID: "t1"})))
	u, _ = p.ByResourceID("u1")
	assert.True(t, u.Tenants["t1"])

	require.NoError(t, p.Apply(marshalEvent(t, 3, EventUserPasswordChanged, UserPasswordChanged{ResourceID: "u1", PasswordHash: "hash2"})))
	u, _ = p.ByResourceID("u1")
	assert.Equal(t, "hash2", u.PasswordHash)

	require.NoError(t, p.Apply(marshalEvent(t, 4, EventUserUpdated, UserUpdated{ResourceID: "u1", Email: "b@example.com"})))
	_, ok = p.ByEmail("a@example.com")
	assert.False(t, ok)
	u, ok = p.ByEmail("b@example.com")
	require.True(t, ok)
	assert.Equal(t, "u1", u.ResourceID)

	require.NoError(t, p.Apply(marshalEvent(t, 5, EventUserTenantRemoved, UserTenantRemoved{ResourceID: "u1", TenantResourceID: "t1"})))
	u, _ = p.ByResourceID("u1")
	assert.False(t, u.Tenants["t1"])
}

func TestAPIKeyProjectionCreateAndRevoke(t *testing.T) {
	p := NewAPIKeyProjection()
	require.NoError(t, p.Apply(marshalEvent(t, 1, EventAPIKeyCreated, APIKeyCreated{
		ResourceID: "k1", PrincipalID: "u1", KeyHash: "hash",
	})))

	k, ok := p.ByResourceID("k1")
	require.True(t, ok)
	assert.False(t, k.Revoked)

	require.NoError(t, p.Apply(marshalEvent(t, 2, EventAPIKeyRevoked, APIKeyRevoked{ResourceID: "k1"})))
	k, ok = p.ByResourceID("k1")
	require.True(t, ok)
	assert.True(t, k.Revoked)
}
