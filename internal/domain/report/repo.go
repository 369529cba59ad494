package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/openlis/lis/internal/platform/store"
)

const Collection = "billing_reports"

var ErrReportNotFound = errors.New("report not found")

type Repository interface {
	List(ctx context.Context) ([]Report, error)
	// Save appends a new report with the next id, or replaces the
	// existing report for the same billing while keeping its id and
	// created_at.
	Save(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id int) (*Report, error)
	GetBySID(ctx context.Context, sid string) (*Report, error)
	GetByBillingID(ctx context.Context, billingID int) (*Report, error)
}

type storeRepo struct {
	st *store.Store
}

func NewRepo(st *store.Store) Repository {
	return &storeRepo{st: st}
}

func (r *storeRepo) List(_ context.Context) ([]Report, error) {
	var reports []Report
	if err := r.st.ReadInto(Collection, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *storeRepo) Save(_ context.Context, rep *Report) error {
	return r.st.Update(Collection, func() (interface{}, error) {
		var reports []Report
		if err := r.st.ReadInto(Collection, &reports); err != nil {
			return nil, err
		}
		maxID := 0
		for i := range reports {
			if reports[i].ID > maxID {
				maxID = reports[i].ID
			}
			if reports[i].BillingID == rep.BillingID {
				rep.ID = reports[i].ID
				rep.CreatedAt = reports[i].CreatedAt
				reports[i] = *rep
				return reports, nil
			}
		}
		rep.ID = maxID + 1
		reports = append(reports, *rep)
		return reports, nil
	})
}

func (r *storeRepo) GetByID(ctx context.Context, id int) (*Report, error) {
	reports, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].ID == id {
			return &reports[i], nil
		}
	}
	return nil, fmt.Errorf("report %d: %w", id, ErrReportNotFound)
}

func (r *storeRepo) GetBySID(ctx context.Context, sid string) (*Report, error) {
	reports, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].SIDNumber == sid {
			return &reports[i], nil
		}
	}
	return nil, fmt.Errorf("report for sid %q: %w", sid, ErrReportNotFound)
}

func (r *storeRepo) GetByBillingID(ctx context.Context, billingID int) (*Report, error) {
	reports, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].BillingID == billingID {
			return &reports[i], nil
		}
	}
	return nil, fmt.Errorf("report for billing %d: %w", billingID, ErrReportNotFound)
}
