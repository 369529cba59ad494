package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/openlis/lis/internal/platform/store"
)

const Collection = "patients"

var ErrPatientNotFound = errors.New("patient not found")

type Repository interface {
	Get(ctx context.Context, id int) (*Patient, error)
}

type storeRepo struct {
	st *store.Store
}

func NewRepo(st *store.Store) Repository {
	return &storeRepo{st: st}
}

func (r *storeRepo) Get(_ context.Context, id int) (*Patient, error) {
	var patients []Patient
	if err := r.st.ReadInto(Collection, &patients); err != nil {
		return nil, err
	}
	for i := range patients {
		if patients[i].ID == id {
			return &patients[i], nil
		}
	}
	return nil, fmt.Errorf("patient %d: %w", id, ErrPatientNotFound)
}
