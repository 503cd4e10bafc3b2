package provisioning

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// AdminRole identifies an admin account variant. The value doubles as the
// identity role name.
type AdminRole string

const (
	// RoleMinistryAdmin administers an institution (ministry)
	RoleMinistryAdmin AdminRole = "ministryadmin"
	// RoleRegionAdmin administers a region of an institution
	RoleRegionAdmin AdminRole = "regionadmin"
	// RoleAreaAdmin administers an area (territorial community)
	RoleAreaAdmin AdminRole = "areaadmin"
	// RoleProviderAdmin administers a provider and, unless deputy, a set of workshops
	RoleProviderAdmin AdminRole = "provider"
	// RoleEmployee is a provider employee managing workshops
	RoleEmployee AdminRole = "employee"
)

// ScopeKind is the kind of entity an admin account is scoped to
type ScopeKind string

const (
	ScopeInstitution ScopeKind = "institution"
	ScopeRegion      ScopeKind = "region"
	ScopeArea        ScopeKind = "area"
	ScopeProvider    ScopeKind = "provider"
)

type roleTraits struct {
	label          string
	slug           string
	scope          ScopeKind
	workshops      bool
	deputies       bool
	immutableScope bool
}

var roleRegistry = map[AdminRole]roleTraits{
	RoleMinistryAdmin: {label: "MinistryAdmin", slug: "ministry", scope: ScopeInstitution, immutableScope: true},
	RoleRegionAdmin:   {label: "RegionAdmin", slug: "region", scope: ScopeRegion, immutableScope: true},
	RoleAreaAdmin:     {label: "AreaAdmin", slug: "area", scope: ScopeArea, immutableScope: true},
	RoleProviderAdmin: {label: "ProviderAdmin", slug: "provider", scope: ScopeProvider, workshops: true, deputies: true, immutableScope: true},
	RoleEmployee:      {label: "Employee", slug: "employee", scope: ScopeProvider, workshops: true, immutableScope: true},
}

// AdminRoles lists every supported role in a stable order
func AdminRoles() []AdminRole {
	return []AdminRole{
		RoleMinistryAdmin,
		RoleRegionAdmin,
		RoleAreaAdmin,
		RoleProviderAdmin,
		RoleEmployee,
	}
}

// ParseAdminRole accepts a role name, label or route slug
func ParseAdminRole(s string) (AdminRole, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for role, traits := range roleRegistry {
		if needle == string(role) || needle == traits.slug || needle == strings.ToLower(traits.label) {
			return role, nil
		}
	}
	return "", goerrors.New("unknown admin role", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"role": s,
		})
}

func (r AdminRole) String() string {
	return string(r)
}

// IsValid reports whether the role is registered
func (r AdminRole) IsValid() bool {
	_, ok := roleRegistry[r]
	return ok
}

// Label is the human readable variant name used in logs and configuration
func (r AdminRole) Label() string {
	return roleRegistry[r].label
}

// Slug is the route segment for the role
func (r AdminRole) Slug() string {
	return roleRegistry[r].slug
}

// Scope returns the scope kind of the role
func (r AdminRole) Scope() ScopeKind {
	return roleRegistry[r].scope
}

// ManagesWorkshops reports whether accounts of this role carry workshop assignments
func (r AdminRole) ManagesWorkshops() bool {
	return roleRegistry[r].workshops
}

// SupportsDeputies reports whether the role has a deputy flavour
func (r AdminRole) SupportsDeputies() bool {
	return roleRegistry[r].deputies
}

// ImmutableScope reports whether update keeps the scope id set at creation
func (r AdminRole) ImmutableScope() bool {
	return roleRegistry[r].immutableScope
}

// RequiresWorkshops reports whether an account must own at least one workshop.
func (r AdminRole) RequiresWorkshops(isDeputy bool) bool {
	if !r.ManagesWorkshops() {
		return false
	}
	if r.SupportsDeputies() && isDeputy {
		return false
	}
	return true
}
