package management

import (
	"github.com/kavelabs/eventbroker/core/topic"
	"github.com/kavelabs/eventbroker/internal/errs"
)

// Authorizer is the Authorization component (C11): it resolves names to
// resource ids via the projections, then folds the Permission Projection's
// grants into an allow/deny decision (spec.md §4.11).
type Authorizer struct {
	tenants     *TenantProjection
	namespaces  *NamespaceProjection
	permissions *PermissionProjection
	topics      *topic.Service
}

// NewAuthorizer constructs an Authorizer over the management projections
// and the Topic Store.
func NewAuthorizer(projections *Projections, topics *topic.Service) *Authorizer {
	return &Authorizer{
		tenants:     projections.Tenants,
		namespaces:  projections.Namespaces,
		permissions: projections.Permissions,
		topics:      topics,
	}
}

// CheckPermission answers whether principal may perform required on the
// named resource, scoped to tenantName (and optionally namespaceName /
// topicName). For TENANT, NAMESPACE and TOPIC the target is the tenant,
// namespace or topic resolved from the scope names, and resourceName is not
// used; for every other resourceType resourceName is taken as the target's
// resourceId. An empty target checks a scope-wide capability.
func (a *Authorizer) CheckPermission(principal string, resourceType ResourceType, resourceName string, required Permission, tenantName, namespaceName, topicName string) (bool, error) {
	tenant, ok := a.tenants.ByName(tenantName)
	if !ok || tenant.Deleted {
		return false, errs.New(errs.KindNotFound, "tenant \""+tenantName+"\" not found", nil)
	}

	var namespaceResourceID string
	if namespaceName != "" {
		ns, ok := a.namespaces.ByName(tenant.ResourceID, namespaceName)
		if !ok || ns.Deleted {
			return false, errs.New(errs.KindNotFound, "namespace \""+namespaceName+"\" not found", nil)
		}
		namespaceResourceID = ns.ResourceID
	}

	var topicResourceID string
	if topicName != "" {
		cfg, err := a.topics.GetTopic(tenantName, namespaceName, topicName)
		if err != nil {
			return false, err
		}
		if cfg == nil {
			return false, errs.ErrTopicNotFound
		}
		topicResourceID = cfg.ResourceID
	}

	// The specific target's resourceId, when resourceType names an object
	// this call is resolving by name within the already-resolved scope.
	var targetResourceID string
	switch resourceType {
	case ResourceTenant:
		targetResourceID = tenant.ResourceID
	case ResourceNamespace:
		targetResourceID = namespaceResourceID
	case ResourceTopic:
		targetResourceID = topicResourceID
	default:
		targetResourceID = resourceName
	}

	grants := a.permissions.GetPermissionGrants(principal, tenant.ResourceID, namespaceResourceID, topicResourceID)
	return allows(grants, resourceType, targetResourceID, required), nil
}

// allows folds the scope-compatible grant set into a single allow/deny
// decision. A grant permits the request if it targets resourceType (or was
// granted at TENANT scope, which inherits down to every nested resource
// type per spec.md §4.11's inheritance rule), its own target is a wildcard
// or matches, and its permission set contains required or ADMIN.
func allows(grants []*Grant, resourceType ResourceType, targetResourceID string, required Permission) bool {
	for _, g := range grants {
		if g.ResourceType != resourceType && g.ResourceType != ResourceTenant {
			continue
		}
		if g.TargetResourceID != nil && targetResourceID != "" && *g.TargetResourceID != targetResourceID {
			continue
		}
		if g.Permissions[required] || g.Permissions[PermissionAdmin] {
			return true
		}
	}
	return false
}
