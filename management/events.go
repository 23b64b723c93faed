// Package management implements the event-sourced management plane (C8
// Management Event Stream, C9 Projections, C10 Bootstrap, C11 Authorization)
// rooted at the reserved "$system" tenant / "$management" namespace
// (spec.md §4.8–§4.11).
package management

import "time"

// Topic names within the management namespace (spec.md §4.8).
const (
	TopicTenants     = "tenants"
	TopicNamespaces  = "namespaces"
	TopicUsers       = "users"
	TopicPermissions = "permissions"
	TopicAPIKeys     = "api-keys"
)

// ManagementTopics lists every reserved topic the management plane owns.
var ManagementTopics = []string{TopicTenants, TopicNamespaces, TopicUsers, TopicPermissions, TopicAPIKeys}

// Event types, grouped by the topic that carries them (spec.md §4.8 table).
const (
	EventTenantCreated = "tenant.created"
	EventTenantUpdated = "tenant.updated"
	EventTenantDeleted = "tenant.deleted"

	EventNamespaceCreated = "namespace.created"
	EventNamespaceUpdated = "namespace.updated"
	EventNamespaceDeleted = "namespace.deleted"

	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserPasswordChanged = "user.password.changed"
	EventUserTenantAssigned  = "user.tenant.assigned"
	EventUserTenantRemoved   = "user.tenant.removed"

	EventPermissionGranted = "permission.granted"
	EventPermissionRevoked = "permission.revoked"

	EventAPIKeyCreated = "api-key.created"
	EventAPIKeyRevoked = "api-key.revoked"
)

// ResourceType enumerates the kinds of resource a permission grant can
// target (spec.md §4.11).
type ResourceType string

const (
	ResourceTenant    ResourceType = "TENANT"
	ResourceNamespace ResourceType = "NAMESPACE"
	ResourceTopic     ResourceType = "TOPIC"
	ResourceEvent     ResourceType = "EVENT"
	ResourceConsumer  ResourceType = "CONSUMER"
	ResourceUser      ResourceType = "USER"
)

// Permission is a single grantable capability. ADMIN implies every other
// permission at its scope and, per the inheritance rule, at every nested
// scope too (spec.md §4.11).
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
	PermissionAdmin Permission = "ADMIN"
)

// TenantCreated is the payload of a tenant.created event.
type TenantCreated struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
	CreatedBy  string `json:"createdBy"`
}

// TenantUpdated is the payload of a tenant.updated event (rename).
type TenantUpdated struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
	UpdatedBy  string `json:"updatedBy"`
}

// TenantDeleted is the payload of a tenant.deleted tombstone event.
type TenantDeleted struct {
	ResourceID string `json:"resourceId"`
	DeletedBy  string `json:"deletedBy"`
}

// NamespaceCreated is the payload of a namespace.created event.
type NamespaceCreated struct {
	ResourceID       string `json:"resourceId"`
	TenantResourceID string `json:"tenantResourceId"`
	Name             string `json:"name"`
	CreatedBy        string `json:"createdBy"`
}

// NamespaceUpdated is the payload of a namespace.updated event (rename).
type NamespaceUpdated struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
	UpdatedBy  string `json:"updatedBy"`
}

// NamespaceDeleted is the payload of a namespace.deleted tombstone event.
type NamespaceDeleted struct {
	ResourceID string `json:"resourceId"`
	DeletedBy  string `json:"deletedBy"`
}

// UserCreated is the payload of a user.created event. PasswordHash is a
// bcrypt digest, never the plaintext password.
type UserCreated struct {
	ResourceID   string `json:"resourceId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedBy    string `json:"createdBy"`
}

// UserUpdated is the payload of a user.updated event.
type UserUpdated struct {
	ResourceID string `json:"resourceId"`
	Email      string `json:"email"`
	UpdatedBy  string `json:"updatedBy"`
}

// UserPasswordChanged is the payload of a user.password.changed event.
type UserPasswordChanged struct {
	ResourceID   string `json:"resourceId"`
	PasswordHash string `json:"passwordHash"`
}

// UserTenantAssigned is the payload of a user.tenant.assigned event.
type UserTenantAssigned struct {
	ResourceID       string `json:"resourceId"`
	TenantResourceID string `json:"tenantResourceId"`
}

// UserTenantRemoved is the payload of a user.tenant.removed event.
type UserTenantRemoved struct {
	ResourceID       string `json:"resourceId"`
	TenantResourceID string `json:"tenantResourceId"`
}

// PermissionGranted is the payload of a permission.granted event.
// TargetResourceID is the target resource; nil means "all resources of
// ResourceType within the declared scope" (spec.md §3).
type PermissionGranted struct {
	ResourceID          string       `json:"resourceId"` // the grant's own resourceId, for later revoke
	PrincipalID         string       `json:"principalId"`
	ResourceType        ResourceType `json:"resourceType"`
	TargetResourceID    *string      `json:"targetResourceId"`
	TenantResourceID    string       `json:"tenantResourceId"`
	NamespaceResourceID *string      `json:"namespaceResourceId"`
	TopicResourceID     *string      `json:"topicResourceId"`
	Permissions         []Permission `json:"permissions"`
	ExpiresAt           *time.Time   `json:"expiresAt"`
	GrantedBy           string       `json:"grantedBy"`
}

// PermissionRevoked is the payload of a permission.revoked event, referring
// back to the grant's own resourceId.
type PermissionRevoked struct {
	ResourceID string `json:"resourceId"`
	RevokedBy  string `json:"revokedBy"`
}

// APIKeyCreated is the payload of an api-key.created event.
type APIKeyCreated struct {
	ResourceID  string `json:"resourceId"`
	PrincipalID string `json:"principalId"`
	KeyHash     string `json:"keyHash"`
	CreatedBy   string `json:"createdBy"`
}

// APIKeyRevoked is the payload of an api-key.revoked event.
type APIKeyRevoked struct {
	ResourceID string `json:"resourceId"`
}
