package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/openlis/lis/internal/platform/store"
)

const Collection = "billings"

var ErrBillingNotFound = errors.New("billing not found")

type Repository interface {
	List(ctx context.Context) ([]Billing, error)
	Get(ctx context.Context, id int) (*Billing, error)
	// Insert assigns the next billing id and appends the record.
	Insert(ctx context.Context, b *Billing) error
	// Replace swaps the stored record with the same id.
	Replace(ctx context.Context, b *Billing) error
}

type storeRepo struct {
	st *store.Store
}

func NewRepo(st *store.Store) Repository {
	return &storeRepo{st: st}
}

func (r *storeRepo) List(_ context.Context) ([]Billing, error) {
	var billings []Billing
	if err := r.st.ReadInto(Collection, &billings); err != nil {
		return nil, err
	}
	return billings, nil
}

func (r *storeRepo) Get(ctx context.Context, id int) (*Billing, error) {
	billings, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range billings {
		if billings[i].ID == id {
			return &billings[i], nil
		}
	}
	return nil, fmt.Errorf("billing %d: %w", id, ErrBillingNotFound)
}

func (r *storeRepo) Insert(_ context.Context, b *Billing) error {
	return r.st.Update(Collection, func() (interface{}, error) {
		var billings []Billing
		if err := r.st.ReadInto(Collection, &billings); err != nil {
			return nil, err
		}
		maxID := 0
		for _, x := range billings {
			if x.ID > maxID {
				maxID = x.ID
			}
		}
		b.ID = maxID + 1
		billings = append(billings, *b)
		return billings, nil
	})
}

func (r *storeRepo) Replace(_ context.Context, b *Billing) error {
	return r.st.Update(Collection, func() (interface{}, error) {
		var billings []Billing
		if err := r.st.ReadInto(Collection, &billings); err != nil {
			return nil, err
		}
		for i := range billings {
			if billings[i].ID == b.ID {
				billings[i] = *b
				return billings, nil
			}
		}
		return nil, fmt.Errorf("billing %d: %w", b.ID, ErrBillingNotFound)
	})
}
