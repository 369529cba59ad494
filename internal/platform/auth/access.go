package auth

import "context"

// TenantInfo is the slice of tenant state access decisions need. The
// franchise registry is adapted to TenantDirectory in main to keep this
// package free of domain imports.
type TenantInfo struct {
	ID     int
	IsHub  bool
	Active bool
}

// TenantDirectory lists all tenants, active or not.
type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]TenantInfo, error)
}

// Scope is the set of tenant ids a caller may see.
type Scope struct {
	allowed map[int]struct{}
}

// Allows reports whether records of the given tenant are visible.
func (s Scope) Allows(tenantID int) bool {
	_, ok := s.allowed[tenantID]
	return ok
}

// Empty reports whether the scope admits nothing.
func (s Scope) Empty() bool {
	return len(s.allowed) == 0
}

// ResolveScope computes the caller's tenant visibility:
//   - admin sees all active tenants,
//   - hub_admin whose own tenant is an active hub sees all active tenants,
//   - franchise_admin (and hub_admin of a non-hub) sees only its own tenant,
//   - other sees all active tenants except its own,
//   - anything else sees nothing.
//
// Admin and a hub admin of an active hub resolve to the same set, so no
// role sees records of a deactivated franchise.
func ResolveScope(ctx context.Context, dir TenantDirectory, actor Actor) (Scope, error) {
	switch actor.Role {
	case RoleAdmin:
		tenants, err := dir.ListTenants(ctx)
		if err != nil {
			return Scope{}, err
		}
		allowed := make(map[int]struct{})
		for _, t := range tenants {
			if t.Active {
				allowed[t.ID] = struct{}{}
			}
		}
		return Scope{allowed: allowed}, nil

	case RoleHubAdmin:
		tenants, err := dir.ListTenants(ctx)
		if err != nil {
			return Scope{}, err
		}
		isHub := false
		for _, t := range tenants {
			if t.ID == actor.TenantID && t.IsHub && t.Active {
				isHub = true
				break
			}
		}
		if !isHub {
			return Scope{allowed: map[int]struct{}{actor.TenantID: {}}}, nil
		}
		allowed := make(map[int]struct{})
		for _, t := range tenants {
			if t.Active {
				allowed[t.ID] = struct{}{}
			}
		}
		return Scope{allowed: allowed}, nil

	case RoleFranchiseAdmin:
		return Scope{allowed: map[int]struct{}{actor.TenantID: {}}}, nil

	case RoleOther:
		tenants, err := dir.ListTenants(ctx)
		if err != nil {
			return Scope{}, err
		}
		allowed := make(map[int]struct{})
		for _, t := range tenants {
			if t.Active && t.ID != actor.TenantID {
				allowed[t.ID] = struct{}{}
			}
		}
		return Scope{allowed: allowed}, nil
	}
	return Scope{}, nil
}
