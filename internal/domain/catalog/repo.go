package catalog

import (
	"context"

	"github.com/openlis/lis/internal/platform/store"
)

const (
	TestCollection    = "test_master"
	ProfileCollection = "profiles"
)

type Repository interface {
	Tests(ctx context.Context) ([]Test, error)
	Profiles(ctx context.Context) ([]Profile, error)
}

type storeRepo struct {
	st *store.Store
}

func NewRepo(st *store.Store) Repository {
	return &storeRepo{st: st}
}

func (r *storeRepo) Tests(_ context.Context) ([]Test, error) {
	var tests []Test
	if err := r.st.ReadInto(TestCollection, &tests); err != nil {
		return nil, err
	}
	return tests, nil
}

func (r *storeRepo) Profiles(_ context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := r.st.ReadInto(ProfileCollection, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}
