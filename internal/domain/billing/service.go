package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/domain/sid"
	"github.com/openlis/lis/internal/platform/auth"
	"github.com/openlis/lis/pkg/flexnum"
)

var (
	// ErrSIDTaken rejects an explicitly supplied SID that already exists.
	ErrSIDTaken = errors.New("sid already in use")

	// ErrOutOfScope marks a record that exists but is outside the
	// caller's tenant visibility.
	ErrOutOfScope = errors.New("record outside caller scope")
)

// ReportTrigger generates or regenerates the report for a billing. The
// report builder satisfies it via an adapter in main; an interface here
// keeps the billing package from importing the report package.
type ReportTrigger interface {
	GenerateForBilling(ctx context.Context, billingID int) error
}

type Service struct {
	repo    Repository
	reg     *franchise.Registry
	alloc   *sid.Allocator
	trigger ReportTrigger
	logger  zerolog.Logger
}

func NewService(repo Repository, reg *franchise.Registry, alloc *sid.Allocator, trigger ReportTrigger, logger zerolog.Logger) *Service {
	return &Service{repo: repo, reg: reg, alloc: alloc, trigger: trigger, logger: logger}
}

// CreateInput is the billing-creation request after transport decoding.
// SID is optional; when empty the allocator assigns the next number.
type CreateInput struct {
	TenantID      int     `json:"tenant_id"`
	PatientID     int     `json:"patient_id"`
	SID           string  `json:"sid_number,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	InvoiceDate   string  `json:"invoice_date,omitempty"`
	Items         []Item  `json:"items"`
	BillAmount    float64 `json:"bill_amount"`
	Discount      float64 `json:"discount"`
	GSTAmount     float64 `json:"gst_amount"`
	PaidAmount    float64 `json:"paid_amount"`
	Balance       float64 `json:"balance"`
}

type CreateResult struct {
	Billing         *Billing `json:"billing"`
	ReportGenerated bool     `json:"report_generated"`
}

// Create persists a new billing under a freshly allocated (or validated
// explicit) SID and triggers report generation. Report failure is logged
// but does not fail the creation; the report can be regenerated later.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	tenant, err := s.reg.Get(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, errors.New("billing needs at least one item")
	}

	sidNumber := in.SID
	fallback := false
	if sidNumber != "" {
		if err := sid.Validate(sidNumber, tenant); err != nil {
			return nil, err
		}
		// Reserve, not just check: two requests carrying the same
		// explicit SID must not both get past the uniqueness gate.
		reserved, err := s.alloc.Reserve(ctx, sidNumber, in.TenantID)
		if err != nil {
			return nil, err
		}
		if !reserved {
			return nil, fmt.Errorf("sid %q: %w", sidNumber, ErrSIDTaken)
		}
	} else {
		sidNumber, fallback, err = s.alloc.Allocate(ctx, in.TenantID)
		if err != nil {
			return nil, err
		}
	}
	// Released in every path: after a successful insert the SID lives in
	// the store; after a failed one the number must be reissuable.
	defer s.alloc.Release(sidNumber)

	b := &Billing{
		TenantID:      in.TenantID,
		PatientID:     in.PatientID,
		SIDNumber:     sidNumber,
		SIDFallback:   fallback,
		InvoiceNumber: in.InvoiceNumber,
		InvoiceDate:   in.InvoiceDate,
		Items:         in.Items,
		BillAmount:    flexnum.Float(in.BillAmount),
		Discount:      flexnum.Float(in.Discount),
		GSTAmount:     flexnum.Float(in.GSTAmount),
		PaidAmount:    flexnum.Float(in.PaidAmount),
		Balance:       flexnum.Float(in.Balance),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.Insert(ctx, b); err != nil {
		return nil, err
	}

	reportOK := false
	if s.trigger != nil {
		if err := s.trigger.GenerateForBilling(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Int("billing_id", b.ID).Str("sid", b.SIDNumber).
				Msg("report generation failed after billing creation")
		} else {
			reportOK = true
		}
	}
	return &CreateResult{Billing: b, ReportGenerated: reportOK}, nil
}

// Get returns a billing the caller may see. A record outside the scope
// reports ErrOutOfScope so the transport can distinguish 403 from 404.
func (s *Service) Get(ctx context.Context, id int, scope auth.Scope) (*Billing, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(b.TenantID) {
		return nil, fmt.Errorf("billing %d: %w", id, ErrOutOfScope)
	}
	return b, nil
}

// List returns the billings visible to the caller, newest first.
func (s *Service) List(ctx context.Context, scope auth.Scope) ([]Billing, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Billing, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if scope.Allows(all[i].TenantID) {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// PaymentInput updates the payment state of a billing. Everything else
// on the record, the SID above all, stays as created.
type PaymentInput struct {
	PaidAmount float64 `json:"paid_amount"`
	Balance    float64 `json:"balance"`
}

func (s *Service) RecordPayment(ctx context.Context, id int, in PaymentInput, scope auth.Scope) (*Billing, error) {
	b, err := s.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	b.PaidAmount = flexnum.Float(in.PaidAmount)
	b.Balance = flexnum.Float(in.Balance)
	b.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.repo.Replace(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Regenerate rebuilds the report for an existing billing on demand.
func (s *Service) Regenerate(ctx context.Context, id int, scope auth.Scope) error {
	if _, err := s.Get(ctx, id, scope); err != nil {
		return err
	}
	if s.trigger == nil {
		return errors.New("report generation not configured")
	}
	return s.trigger.GenerateForBilling(ctx, id)
}
