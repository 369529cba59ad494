package franchise

import (
	"context"

	"github.com/openlis/lis/internal/platform/store"
)

// Collection is the on-disk collection name for tenants.
const Collection = "tenants"

type Repository interface {
	ListAll(ctx context.Context) ([]Tenant, error)
}

type storeRepo struct {
	st *store.Store
}

func NewRepo(st *store.Store) Repository {
	return &storeRepo{st: st}
}

func (r *storeRepo) ListAll(_ context.Context) ([]Tenant, error) {
	var tenants []Tenant
	if err := r.st.ReadInto(Collection, &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}
