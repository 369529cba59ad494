package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/domain/sid"
	"github.com/openlis/lis/internal/platform/auth"
	"github.com/openlis/lis/internal/platform/store"
)

type stubTrigger struct {
	calls []int
	err   error
}

func (t *stubTrigger) GenerateForBilling(_ context.Context, billingID int) error {
	t.calls = append(t.calls, billingID)
	return t.err
}

type staticDir struct {
	tenants []auth.TenantInfo
}

func (d *staticDir) ListTenants(_ context.Context) ([]auth.TenantInfo, error) {
	return d.tenants, nil
}

func newTestService(t *testing.T, trigger ReportTrigger) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tenants := []franchise.Tenant{
		{ID: 1, Name: "Mayiladuthurai", SiteCode: "MYD", UsePrefix: true, IsActive: true},
		{ID: 2, Name: "Sirkazhi", SiteCode: "SKZ", UsePrefix: true, IsActive: true},
	}
	if err := st.Write(franchise.Collection, tenants); err != nil {
		t.Fatal(err)
	}
	reg := franchise.NewRegistry(franchise.NewRepo(st))
	alloc := sid.NewAllocator(st, reg, zerolog.Nop(), 3, time.Millisecond)
	return NewService(NewRepo(st), reg, alloc, trigger, zerolog.Nop()), st
}

func testDir() *staticDir {
	return &staticDir{tenants: []auth.TenantInfo{
		{ID: 1, Active: true},
		{ID: 2, Active: true},
	}}
}

func adminScope(t *testing.T) auth.Scope {
	t.Helper()
	scope, err := auth.ResolveScope(context.Background(), testDir(), auth.Actor{Role: auth.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	return scope
}

func franchiseScope(t *testing.T, tenantID int) auth.Scope {
	t.Helper()
	scope, err := auth.ResolveScope(context.Background(), &staticDir{},
		auth.Actor{Role: auth.RoleFranchiseAdmin, TenantID: tenantID})
	if err != nil {
		t.Fatal(err)
	}
	return scope
}

func testItem() Item {
	return Item{Kind: ItemTest, TestID: 252, TestName: "Triglycerides", Quantity: 1, Price: 100, Amount: 100}
}

func TestCreate_AllocatesSIDAndTriggersReport(t *testing.T) {
	trigger := &stubTrigger{}
	svc, _ := newTestService(t, trigger)

	res, err := svc.Create(context.Background(), CreateInput{
		TenantID:   1,
		PatientID:  10,
		Items:      []Item{testItem()},
		BillAmount: 100,
		Balance:    100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Billing.SIDNumber != "MYD001" {
		t.Errorf("sid %q, want MYD001", res.Billing.SIDNumber)
	}
	if res.Billing.ID != 1 {
		t.Errorf("id %d, want 1", res.Billing.ID)
	}
	if !res.ReportGenerated {
		t.Error("report should have been generated")
	}
	if len(trigger.calls) != 1 || trigger.calls[0] != res.Billing.ID {
		t.Errorf("trigger calls: %v", trigger.calls)
	}

	res2, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 11, Items: []Item{testItem()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res2.Billing.SIDNumber != "MYD002" {
		t.Errorf("second sid %q, want MYD002", res2.Billing.SIDNumber)
	}
}

func TestCreate_ExplicitSID(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})

	res, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 10, SID: "MYD042", Items: []Item{testItem()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Billing.SIDNumber != "MYD042" {
		t.Errorf("sid %q", res.Billing.SIDNumber)
	}

	// The explicit number is now taken.
	_, err = svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 11, SID: "MYD042", Items: []Item{testItem()},
	})
	if !errors.Is(err, ErrSIDTaken) {
		t.Errorf("err = %v, want ErrSIDTaken", err)
	}

	// Allocation continues past the explicit number.
	res, err = svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 12, Items: []Item{testItem()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Billing.SIDNumber != "MYD043" {
		t.Errorf("sid %q, want MYD043", res.Billing.SIDNumber)
	}
}

func TestCreate_ConcurrentExplicitSID(t *testing.T) {
	svc, st := newTestService(t, &stubTrigger{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(patientID int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), CreateInput{
				TenantID: 1, PatientID: patientID, SID: "MYD777", Items: []Item{testItem()},
			})
			errs <- err
		}(100 + i)
	}
	wg.Wait()
	close(errs)

	ok, taken := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSIDTaken):
			taken++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || taken != n-1 {
		t.Errorf("got %d created, %d rejected; want 1 and %d", ok, taken, n-1)
	}

	var billings []Billing
	if err := st.ReadInto(Collection, &billings); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, b := range billings {
		if b.SIDNumber == "MYD777" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("sid persisted on %d billings, want 1", count)
	}
}

func TestCreate_RejectsMalformedSID(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})

	_, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 10, SID: "SKZ001", Items: []Item{testItem()},
	})
	if !errors.Is(err, sid.ErrPrefix) {
		t.Errorf("err = %v, want ErrPrefix", err)
	}
}

func TestCreate_UnknownTenant(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})
	_, err := svc.Create(context.Background(), CreateInput{TenantID: 99, Items: []Item{testItem()}})
	if !errors.Is(err, franchise.ErrTenantNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCreate_ReportFailureDoesNotFailBilling(t *testing.T) {
	trigger := &stubTrigger{err: errors.New("builder down")}
	svc, _ := newTestService(t, trigger)

	res, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 10, Items: []Item{testItem()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ReportGenerated {
		t.Error("report flag should be false")
	}
	got, err := svc.Get(context.Background(), res.Billing.ID, adminScope(t))
	if err != nil {
		t.Fatalf("billing should still be persisted: %v", err)
	}
	if got.SIDNumber != res.Billing.SIDNumber {
		t.Errorf("persisted sid %q", got.SIDNumber)
	}
}

func TestGet_ScopeFiltering(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})

	res, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 10, Items: []Item{testItem()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(context.Background(), res.Billing.ID, franchiseScope(t, 1)); err != nil {
		t.Errorf("own tenant should see its billing: %v", err)
	}
	_, err = svc.Get(context.Background(), res.Billing.ID, franchiseScope(t, 2))
	if !errors.Is(err, ErrOutOfScope) {
		t.Errorf("err = %v, want ErrOutOfScope", err)
	}
	_, err = svc.Get(context.Background(), 999, adminScope(t))
	if !errors.Is(err, ErrBillingNotFound) {
		t.Errorf("err = %v, want ErrBillingNotFound", err)
	}
}

func TestList_ScopeAndOrder(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})

	for _, tenantID := range []int{1, 2, 1} {
		if _, err := svc.Create(context.Background(), CreateInput{
			TenantID: tenantID, PatientID: 10, Items: []Item{testItem()},
		}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.List(context.Background(), adminScope(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("admin sees %d, want 3", len(all))
	}
	if all[0].ID != 3 {
		t.Errorf("newest first: got id %d", all[0].ID)
	}

	mine, err := svc.List(context.Background(), franchiseScope(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].TenantID != 2 {
		t.Errorf("franchise scope: %+v", mine)
	}
}

func TestRecordPayment_SIDImmutable(t *testing.T) {
	svc, _ := newTestService(t, &stubTrigger{})

	res, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1, PatientID: 10, Items: []Item{testItem()},
		BillAmount: 100, Balance: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.RecordPayment(context.Background(), res.Billing.ID,
		PaymentInput{PaidAmount: 100, Balance: 0}, adminScope(t))
	if err != nil {
		t.Fatal(err)
	}
	if float64(updated.PaidAmount) != 100 || float64(updated.Balance) != 0 {
		t.Errorf("payment not applied: %+v", updated)
	}
	if updated.SIDNumber != res.Billing.SIDNumber {
		t.Errorf("sid changed on payment: %q -> %q", res.Billing.SIDNumber, updated.SIDNumber)
	}
	if updated.UpdatedAt == "" {
		t.Error("updated_at not stamped")
	}
}
