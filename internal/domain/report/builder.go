package report

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlis/lis/internal/domain/billing"
	"github.com/openlis/lis/internal/domain/catalog"
	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/domain/patient"
)

// Builder composes a report snapshot from a billing record. Generation is
// deterministic apart from the timestamps; regenerating replaces the
// stored report while preserving its id and SID.
type Builder struct {
	billings billing.Repository
	patients patient.Repository
	reg      *franchise.Registry
	catalog  *catalog.Service
	repo     Repository
	logger   zerolog.Logger
}

func NewBuilder(billings billing.Repository, patients patient.Repository, reg *franchise.Registry, cat *catalog.Service, repo Repository, logger zerolog.Logger) *Builder {
	return &Builder{billings: billings, patients: patients, reg: reg, catalog: cat, repo: repo, logger: logger}
}

// GenerateForBilling builds and persists the report for a billing.
func (b *Builder) GenerateForBilling(ctx context.Context, billingID int) error {
	_, err := b.Build(ctx, billingID)
	return err
}

func (b *Builder) Build(ctx context.Context, billingID int) (*Report, error) {
	src, err := b.billings.Get(ctx, billingID)
	if err != nil {
		return nil, err
	}

	tenant, err := b.reg.Get(ctx, src.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rep := &Report{
		BillingID:   src.ID,
		TenantID:    src.TenantID,
		SIDNumber:   src.SIDNumber,
		GeneratedAt: now,
		CreatedAt:   now,
		PatientInfo: b.patientSnapshot(ctx, src.PatientID),
		ClinicInfo: ClinicInfo{
			TenantID: tenant.ID,
			Name:     tenant.Name,
			SiteCode: tenant.SiteCode,
		},
		BillingHeader: BillingHeader{
			BillingID:     src.ID,
			InvoiceNumber: src.InvoiceNumber,
			InvoiceDate:   src.InvoiceDate,
			SIDNumber:     src.SIDNumber,
		},
		TestItems:      []TestRow{},
		UnmatchedTests: []string{},
		Financial: FinancialSummary{
			BillAmount: float64(src.BillAmount),
			Discount:   float64(src.Discount),
			GSTAmount:  float64(src.GSTAmount),
			PaidAmount: float64(src.PaidAmount),
			Balance:    float64(src.Balance),
		},
	}

	matched := 0
	for _, item := range src.Items {
		rows, name, ok, err := b.resolveItem(ctx, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			rep.UnmatchedTests = append(rep.UnmatchedTests, name)
			continue
		}
		rep.TestItems = append(rep.TestItems, rows...)
		matched++
	}

	rep.Metadata = Metadata{
		TotalTests:          matched + len(rep.UnmatchedTests),
		MatchedTestsCount:   matched,
		UnmatchedTestsCount: len(rep.UnmatchedTests),
	}
	if rep.Metadata.TotalTests > 0 {
		rep.Metadata.TestMatchSuccessRate = float64(matched) / float64(rep.Metadata.TotalTests)
	}

	if err := b.repo.Save(ctx, rep); err != nil {
		return nil, err
	}
	b.logger.Info().
		Int("billing_id", src.ID).
		Int("report_id", rep.ID).
		Str("sid", rep.SIDNumber).
		Int("matched", matched).
		Int("unmatched", len(rep.UnmatchedTests)).
		Msg("report generated")
	return rep, nil
}

// resolveItem expands one billing line into report rows. ok=false with a
// display name means the line goes to unmatched_tests; only store errors
// abort the build.
func (b *Builder) resolveItem(ctx context.Context, item billing.Item) ([]TestRow, string, bool, error) {
	if item.Kind == billing.ItemProfile {
		return b.resolveProfile(ctx, item)
	}
	return b.resolveTest(ctx, item)
}

func (b *Builder) resolveProfile(ctx context.Context, item billing.Item) ([]TestRow, string, bool, error) {
	p, err := b.catalog.ProfileByID(ctx, item.ProfileID)
	if err != nil {
		return nil, "", false, err
	}
	if p == nil {
		return nil, displayName(item), false, nil
	}

	subs, err := b.catalog.ExpandProfile(ctx, p, float64(item.Amount))
	if err != nil {
		var unresolved *catalog.UnresolvedError
		if errors.As(err, &unresolved) {
			b.logger.Warn().
				Str("profile", unresolved.ProfileName).
				Ints("missing_test_ids", unresolved.MissingIDs).
				Msg("profile expansion failed")
			return nil, p.Name, false, nil
		}
		return nil, "", false, err
	}

	rows := make([]TestRow, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, TestRow{
			TestID:            s.TestID,
			TestName:          s.TestName,
			Department:        s.Department,
			Specimen:          s.Specimen,
			Container:         s.Container,
			Method:            s.Method,
			ReferenceRange:    s.ReferenceRange,
			ResultUnit:        s.ResultUnit,
			Instructions:      s.Instructions,
			Quantity:          item.Quantity,
			Price:             s.PriceShare,
			Amount:            s.PriceShare,
			IsProfileSubtest:  true,
			ParentProfileName: s.ParentProfileName,
			SubtestIndex:      s.SubtestIndex,
			TotalSubtests:     s.TotalSubtests,
		})
	}
	return rows, "", true, nil
}

func (b *Builder) resolveTest(ctx context.Context, item billing.Item) ([]TestRow, string, bool, error) {
	t, err := b.catalog.TestByID(ctx, item.TestID)
	if err != nil {
		return nil, "", false, err
	}
	if t == nil {
		t, err = b.catalog.TestByName(ctx, item.TestName)
		if err != nil {
			return nil, "", false, err
		}
	}
	if t == nil {
		return nil, displayName(item), false, nil
	}
	row := TestRow{
		TestID:         t.ID,
		TestName:       t.TestName,
		Department:     t.Department,
		Specimen:       t.PrimarySpecimen,
		Container:      t.Container,
		Method:         t.Method,
		ReferenceRange: t.ReferenceRange,
		ResultUnit:     t.ResultUnit,
		Instructions:   t.Instructions,
		Quantity:       item.Quantity,
		Price:          float64(item.Price),
		Amount:         float64(item.Amount),
	}
	return []TestRow{row}, "", true, nil
}

func (b *Builder) patientSnapshot(ctx context.Context, patientID int) PatientInfo {
	p, err := b.patients.Get(ctx, patientID)
	if err != nil {
		if !errors.Is(err, patient.ErrPatientNotFound) {
			b.logger.Warn().Err(err).Int("patient_id", patientID).Msg("patient lookup failed")
		}
		return PatientInfo{PatientID: patientID, Name: "N/A"}
	}
	return PatientInfo{
		PatientID: p.ID,
		Name:      p.Name,
		Age:       int(p.Age),
		Gender:    p.Gender,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		RefDoc:    p.RefDoc,
	}
}

func displayName(item billing.Item) string {
	if item.TestName != "" {
		return item.TestName
	}
	if item.Kind == billing.ItemProfile {
		return item.ProfileID
	}
	return "unknown test"
}
