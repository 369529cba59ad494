package sid

import (
	"context"
	"testing"
)

func TestFindDuplicates_BillingReportPairIsNotADuplicate(t *testing.T) {
	billings := []map[string]interface{}{
		{"id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-01T10:00:00Z"},
	}
	reports := []map[string]interface{}{
		{"id": 7, "billing_id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-01T10:00:05Z"},
	}
	a, _ := newTestAllocator(t, mydTenant(), billings, reports)

	groups, err := a.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("a report sharing its own billing's sid is not a duplicate: %+v", groups)
	}
}

func TestFindDuplicates_OrdersOldestFirst(t *testing.T) {
	billings := []map[string]interface{}{
		{"id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-02-02T09:00:00Z"},
		{"id": 2, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-15T09:00:00Z"},
	}
	a, _ := newTestAllocator(t, mydTenant(), billings, nil)

	groups, err := a.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups: %+v", groups)
	}
	g := groups[0]
	if g.SID != "MYD001" || len(g.Entries) != 2 {
		t.Fatalf("group: %+v", g)
	}
	if g.Entries[0].RecordID != 2 {
		t.Errorf("oldest record should come first, got id %d", g.Entries[0].RecordID)
	}
}

func TestRepair_KeepsOldestAndReassignsRest(t *testing.T) {
	billings := []map[string]interface{}{
		{"id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-01T09:00:00Z"},
		{"id": 2, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-02T09:00:00Z"},
		{"id": 3, "tenant_id": 1, "sid_number": "MYD003", "created_at": "2026-01-03T09:00:00Z"},
	}
	a, st := newTestAllocator(t, mydTenant(), billings, nil)

	n, err := a.Repair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reassigned %d records, want 1", n)
	}

	var after []struct {
		ID  int    `json:"id"`
		SID string `json:"sid_number"`
	}
	if err := st.ReadInto(BillingCollection, &after); err != nil {
		t.Fatal(err)
	}
	sids := make(map[int]string, len(after))
	for _, r := range after {
		sids[r.ID] = r.SID
	}
	if sids[1] != "MYD001" {
		t.Errorf("oldest record lost its sid: %q", sids[1])
	}
	if sids[2] == "MYD001" || sids[2] == "" {
		t.Errorf("record 2 should carry a fresh sid, got %q", sids[2])
	}
	if sids[2] == sids[1] || sids[2] == sids[3] {
		t.Errorf("fresh sid %q collides", sids[2])
	}

	groups, err := a.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("duplicates remain after repair: %+v", groups)
	}
}

func TestRepair_CarriesFreshSIDOntoPairedReport(t *testing.T) {
	billings := []map[string]interface{}{
		{"id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-01T09:00:00Z"},
		{"id": 2, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-02T09:00:00Z"},
	}
	reports := []map[string]interface{}{
		{
			"id": 11, "billing_id": 1, "tenant_id": 1, "sid_number": "MYD001",
			"created_at":     "2026-01-01T09:00:05Z",
			"billing_header": map[string]interface{}{"billing_id": 1, "sid_number": "MYD001"},
		},
		{
			"id": 12, "billing_id": 2, "tenant_id": 1, "sid_number": "MYD001",
			"created_at":     "2026-01-02T09:00:05Z",
			"billing_header": map[string]interface{}{"billing_id": 2, "sid_number": "MYD001"},
		},
	}
	a, st := newTestAllocator(t, mydTenant(), billings, reports)

	n, err := a.Repair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reassigned %d records, want 1", n)
	}

	var billingsAfter []struct {
		ID  int    `json:"id"`
		SID string `json:"sid_number"`
	}
	if err := st.ReadInto(BillingCollection, &billingsAfter); err != nil {
		t.Fatal(err)
	}
	billingSIDs := make(map[int]string, len(billingsAfter))
	for _, b := range billingsAfter {
		billingSIDs[b.ID] = b.SID
	}
	if billingSIDs[1] != "MYD001" {
		t.Errorf("oldest billing lost its sid: %q", billingSIDs[1])
	}
	if billingSIDs[2] == "MYD001" || billingSIDs[2] == "" {
		t.Fatalf("billing 2 should carry a fresh sid, got %q", billingSIDs[2])
	}

	var reportsAfter []struct {
		ID        int    `json:"id"`
		BillingID int    `json:"billing_id"`
		SID       string `json:"sid_number"`
		Header    struct {
			SID string `json:"sid_number"`
		} `json:"billing_header"`
	}
	if err := st.ReadInto(ReportCollection, &reportsAfter); err != nil {
		t.Fatal(err)
	}
	for _, r := range reportsAfter {
		want := billingSIDs[r.BillingID]
		if r.SID != want {
			t.Errorf("report %d sid %q, want its billing's %q", r.ID, r.SID, want)
		}
		if r.Header.SID != want {
			t.Errorf("report %d billing_header sid %q, want %q", r.ID, r.Header.SID, want)
		}
	}

	groups, err := a.FindDuplicates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("duplicates remain after repair: %+v", groups)
	}
}

func TestRepair_NoopWhenClean(t *testing.T) {
	billings := []map[string]interface{}{
		{"id": 1, "tenant_id": 1, "sid_number": "MYD001", "created_at": "2026-01-01T09:00:00Z"},
	}
	a, _ := newTestAllocator(t, mydTenant(), billings, nil)

	n, err := a.Repair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("clean store should need no repair, got %d", n)
	}
}
