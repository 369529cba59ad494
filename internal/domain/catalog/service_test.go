package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
)

type mockRepo struct {
	tests    []Test
	profiles []Profile
}

func (m *mockRepo) Tests(_ context.Context) ([]Test, error)       { return m.tests, nil }
func (m *mockRepo) Profiles(_ context.Context) ([]Profile, error) { return m.profiles, nil }

func lipidCatalog() *mockRepo {
	return &mockRepo{
		tests: []Test{
			{ID: 252, TestName: "Triglycerides", Department: "BIOCHEMISTRY", PrimarySpecimen: "Serum", Container: "Red Top"},
			{ID: 253, TestName: "HDL Cholesterol", Department: "BIOCHEMISTRY", PrimarySpecimen: "Serum", Container: "Red Top"},
			{ID: 255, TestName: "Total Cholesterol", Department: "BIOCHEMISTRY", PrimarySpecimen: "Serum", Container: "Red Top"},
			{ID: 256, TestName: "VLDL Cholesterol", Department: "BIOCHEMISTRY", PrimarySpecimen: "Serum", Container: "Red Top"},
			{ID: 257, TestName: "LDL Cholesterol", Department: "BIOCHEMISTRY", PrimarySpecimen: "Serum", Container: "Red Top"},
			{ID: 300, TestName: "CBC", Department: "HAEMATOLOGY", PrimarySpecimen: "Whole Blood", Container: "EDTA"},
		},
		profiles: []Profile{{
			ID:   "01464b61-5b11-4d23-9e8c-0a7d2b9f3c11",
			Name: "Lipid Profile",
			TestItems: []ProfileItem{
				{TestID: 255}, {TestID: 252}, {TestID: 253}, {TestID: 257}, {TestID: 256},
			},
		}},
	}
}

func TestTestByID(t *testing.T) {
	svc := NewService(lipidCatalog())
	got, err := svc.TestByID(context.Background(), 253)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.TestName != "HDL Cholesterol" {
		t.Errorf("got %+v", got)
	}
	missing, err := svc.TestByID(context.Background(), 99999)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestTestByName_Normalised(t *testing.T) {
	svc := NewService(lipidCatalog())
	for _, name := range []string{"cbc", "  CBC  ", "Cbc"} {
		got, err := svc.TestByName(context.Background(), name)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.ID != 300 {
			t.Errorf("lookup %q: got %+v", name, got)
		}
	}
}

func TestTestByName_FirstMatchWins(t *testing.T) {
	repo := &mockRepo{tests: []Test{
		{ID: 1, TestName: "Glucose  Fasting"},
		{ID: 2, TestName: "glucose fasting"},
	}}
	svc := NewService(repo)
	got, err := svc.TestByName(context.Background(), "Glucose Fasting")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != 1 {
		t.Errorf("expected first catalog entry, got %+v", got)
	}
}

func TestProfileByID_NormalisesIntegerIDs(t *testing.T) {
	var p Profile
	raw := `{"id": 42, "test_profile": "Legacy Panel", "testItems": [{"test_id": "252"}]}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID != "42" {
		t.Errorf("id: %q", p.ID)
	}
	if int(p.TestItems[0].TestID) != 252 {
		t.Errorf("string test_id should coerce: %d", int(p.TestItems[0].TestID))
	}

	svc := NewService(&mockRepo{profiles: []Profile{p}})
	got, err := svc.ProfileByID(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Legacy Panel" {
		t.Errorf("got %+v", got)
	}
}

func TestIsProfileShapedID(t *testing.T) {
	if !IsProfileShapedID("01464b61-5b11-4d23-9e8c-0a7d2b9f3c11") {
		t.Error("uuid should be profile shaped")
	}
	if IsProfileShapedID("252") {
		t.Error("integer id should not be profile shaped")
	}
}

func TestExpandProfile_EvenShares(t *testing.T) {
	svc := NewService(lipidCatalog())
	p, _ := svc.ProfileByID(context.Background(), "01464b61-5b11-4d23-9e8c-0a7d2b9f3c11")
	rows, err := svc.ExpandProfile(context.Background(), p, 400)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	var sum float64
	for i, r := range rows {
		if !r.IsProfileSubtest || r.ParentProfileName != "Lipid Profile" {
			t.Errorf("row %d: %+v", i, r)
		}
		if r.SubtestIndex != i+1 || r.TotalSubtests != 5 {
			t.Errorf("row %d index/total: %d/%d", i, r.SubtestIndex, r.TotalSubtests)
		}
		if r.PriceShare != 80 {
			t.Errorf("row %d share: %v", i, r.PriceShare)
		}
		sum += r.PriceShare
	}
	if sum != 400 {
		t.Errorf("shares sum %v, want 400", sum)
	}
}

func TestExpandProfile_LastRowCarry(t *testing.T) {
	svc := NewService(lipidCatalog())
	p, _ := svc.ProfileByID(context.Background(), "01464b61-5b11-4d23-9e8c-0a7d2b9f3c11")
	rows, err := svc.ExpandProfile(context.Background(), p, 100)
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, r := range rows {
		sum += r.PriceShare
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("shares sum %v, want exactly 100", sum)
	}
	if rows[0].PriceShare != 20 || rows[4].PriceShare != 20 {
		t.Errorf("shares: first %v last %v", rows[0].PriceShare, rows[4].PriceShare)
	}

	// Indivisible case: 100/3 = 33.33 with 0.01 carried by the last row.
	repo := lipidCatalog()
	repo.profiles = append(repo.profiles, Profile{
		ID:   "3e0d5a84-9d7f-41f3-8a11-b53b8e2c4b22",
		Name: "Mini Panel",
		TestItems: []ProfileItem{
			{TestID: 252}, {TestID: 253}, {TestID: 255},
		},
	})
	svc = NewService(repo)
	p, _ = svc.ProfileByID(context.Background(), "3e0d5a84-9d7f-41f3-8a11-b53b8e2c4b22")
	rows, err = svc.ExpandProfile(context.Background(), p, 100)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].PriceShare != 33.33 || rows[1].PriceShare != 33.33 {
		t.Errorf("even shares: %v %v", rows[0].PriceShare, rows[1].PriceShare)
	}
	if rows[2].PriceShare != 33.34 {
		t.Errorf("last row must absorb the remainder: %v", rows[2].PriceShare)
	}
}

func TestExpandProfile_UnknownChildFailsWhole(t *testing.T) {
	repo := lipidCatalog()
	repo.profiles[0].TestItems = append(repo.profiles[0].TestItems, ProfileItem{TestID: 99999})
	svc := NewService(repo)
	p, _ := svc.ProfileByID(context.Background(), "01464b61-5b11-4d23-9e8c-0a7d2b9f3c11")

	rows, err := svc.ExpandProfile(context.Background(), p, 400)
	if rows != nil {
		t.Error("partial expansion must not happen")
	}
	var unresolved *UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedError, got %v", err)
	}
	if unresolved.ProfileName != "Lipid Profile" {
		t.Errorf("parent name: %q", unresolved.ProfileName)
	}
	if len(unresolved.MissingIDs) != 1 || unresolved.MissingIDs[0] != 99999 {
		t.Errorf("missing ids: %v", unresolved.MissingIDs)
	}
}

func TestAggregateClinical(t *testing.T) {
	repo := lipidCatalog()
	repo.profiles = append(repo.profiles, Profile{
		ID:   "b8b3f0a2-6a2e-4f6e-9cf0-0f2f6f9a1c33",
		Name: "Mixed Panel",
		TestItems: []ProfileItem{
			{TestID: 252}, {TestID: 300},
		},
	})
	svc := NewService(repo)
	p, _ := svc.ProfileByID(context.Background(), "b8b3f0a2-6a2e-4f6e-9cf0-0f2f6f9a1c33")
	sum, err := svc.AggregateClinical(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Departments != "BIOCHEMISTRY, HAEMATOLOGY" {
		t.Errorf("departments: %q", sum.Departments)
	}
	if sum.Specimens != "Serum, Whole Blood" {
		t.Errorf("specimens: %q", sum.Specimens)
	}
	if sum.Containers != "EDTA, Red Top" {
		t.Errorf("containers: %q", sum.Containers)
	}
}
