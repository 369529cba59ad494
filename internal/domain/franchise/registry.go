package franchise

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvariantViolated signals duplicate site codes among active
	// tenants; mutation of affected data is refused until the registry
	// is repaired externally.
	ErrInvariantViolated = errors.New("registry invariant violated")
)

// Registry resolves tenants and enforces the site-code uniqueness
// invariant on every read.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

func (r *Registry) Get(ctx context.Context, id int) (*Tenant, error) {
	tenants, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkSiteCodes(tenants); err != nil {
		return nil, err
	}
	for i := range tenants {
		if tenants[i].ID == id {
			return &tenants[i], nil
		}
	}
	return nil, fmt.Errorf("tenant %d: %w", id, ErrTenantNotFound)
}

func (r *Registry) ListActive(ctx context.Context) ([]Tenant, error) {
	tenants, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkSiteCodes(tenants); err != nil {
		return nil, err
	}
	var active []Tenant
	for _, t := range tenants {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (r *Registry) ListAll(ctx context.Context) ([]Tenant, error) {
	return r.repo.ListAll(ctx)
}

// CheckSiteCodes verifies that no two active tenants share a site code.
func (r *Registry) CheckSiteCodes(ctx context.Context) error {
	tenants, err := r.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	return checkSiteCodes(tenants)
}

func checkSiteCodes(tenants []Tenant) error {
	seen := make(map[string]int)
	for _, t := range tenants {
		if !t.IsActive || t.SiteCode == "" {
			continue
		}
		if firstID, dup := seen[t.SiteCode]; dup {
			return fmt.Errorf("site code %q shared by tenants %d and %d: %w",
				t.SiteCode, firstID, t.ID, ErrInvariantViolated)
		}
		seen[t.SiteCode] = t.ID
	}
	return nil
}
