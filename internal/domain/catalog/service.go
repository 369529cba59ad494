package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnresolvedError reports a profile whose expansion failed because one or
// more referenced sub-tests are absent from the catalog. Expansion is
// all-or-nothing: a profile is never partially expanded.
type UnresolvedError struct {
	ProfileName string
	MissingIDs  []int
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("profile %q references unknown test ids %v", e.ProfileName, e.MissingIDs)
}

// SubTest is one expanded row of a profile.
type SubTest struct {
	TestID            int     `json:"test_id"`
	TestName          string  `json:"test_name"`
	Department        string  `json:"department"`
	Specimen          string  `json:"specimen"`
	Container         string  `json:"container"`
	Method            string  `json:"method,omitempty"`
	ReferenceRange    string  `json:"reference_range,omitempty"`
	ResultUnit        string  `json:"result_unit,omitempty"`
	Instructions      string  `json:"instructions,omitempty"`
	IsProfileSubtest  bool    `json:"is_profile_subtest"`
	ParentProfileName string  `json:"parent_profile_name"`
	SubtestIndex      int     `json:"subtest_index"`
	TotalSubtests     int     `json:"total_subtests"`
	PriceShare        float64 `json:"price_share"`
}

// ClinicalSummary is the merged clinical view of a profile's sub-tests,
// used when a profile is rendered as a single row.
type ClinicalSummary struct {
	Departments string `json:"departments"`
	Specimens   string `json:"specimens"`
	Containers  string `json:"containers"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// TestByID resolves a single test; nil when absent.
func (s *Service) TestByID(ctx context.Context, id int) (*Test, error) {
	tests, err := s.repo.Tests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		if tests[i].ID == id {
			return &tests[i], nil
		}
	}
	return nil, nil
}

// TestByName resolves a test by case-insensitive, whitespace-normalised
// name. The first match in catalog order wins.
func (s *Service) TestByName(ctx context.Context, name string) (*Test, error) {
	want := NormalizeName(name)
	if want == "" {
		return nil, nil
	}
	tests, err := s.repo.Tests(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		if NormalizeName(tests[i].TestName) == want {
			return &tests[i], nil
		}
	}
	return nil, nil
}

// ProfileByID resolves a profile by its normalised string id; nil when absent.
func (s *Service) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	profiles, err := s.repo.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, nil
}

// IsProfileShapedID reports whether a raw item id looks like a profile
// reference (UUID-shaped string) rather than an integer test id.
func IsProfileShapedID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ExpandProfile resolves every sub-test of a profile and distributes the
// parent line amount evenly across them: each share is the amount divided
// by the row count rounded to 2 decimals, with the rounding remainder
// absorbed by the last row so the shares sum to the amount exactly.
func (s *Service) ExpandProfile(ctx context.Context, p *Profile, parentAmount float64) ([]SubTest, error) {
	total := len(p.TestItems)
	if total == 0 {
		return nil, &UnresolvedError{ProfileName: p.Name}
	}

	tests, err := s.repo.Tests(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*Test, len(tests))
	for i := range tests {
		byID[tests[i].ID] = &tests[i]
	}

	var missing []int
	resolved := make([]*Test, 0, total)
	for _, item := range p.TestItems {
		t, ok := byID[int(item.TestID)]
		if !ok {
			missing = append(missing, int(item.TestID))
			continue
		}
		resolved = append(resolved, t)
	}
	if len(missing) > 0 {
		return nil, &UnresolvedError{ProfileName: p.Name, MissingIDs: missing}
	}

	amount := decimal.NewFromFloat(parentAmount)
	share := amount.Div(decimal.NewFromInt(int64(total))).Round(2)
	lastShare := amount.Sub(share.Mul(decimal.NewFromInt(int64(total - 1))))

	rows := make([]SubTest, 0, total)
	for i, t := range resolved {
		rowShare := share
		if i == total-1 {
			rowShare = lastShare
		}
		rows = append(rows, SubTest{
			TestID:            t.ID,
			TestName:          t.TestName,
			Department:        t.Department,
			Specimen:          t.PrimarySpecimen,
			Container:         t.Container,
			Method:            t.Method,
			ReferenceRange:    t.ReferenceRange,
			ResultUnit:        t.ResultUnit,
			Instructions:      t.Instructions,
			IsProfileSubtest:  true,
			ParentProfileName: p.Name,
			SubtestIndex:      i + 1,
			TotalSubtests:     total,
			PriceShare:        rowShare.InexactFloat64(),
		})
	}
	return rows, nil
}

// AggregateClinical merges department/specimen/container across a
// profile's sub-tests, de-duplicated and joined alphabetically.
func (s *Service) AggregateClinical(ctx context.Context, p *Profile) (*ClinicalSummary, error) {
	rows, err := s.ExpandProfile(ctx, p, 0)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]struct{})
	specs := make(map[string]struct{})
	conts := make(map[string]struct{})
	for _, r := range rows {
		if r.Department != "" {
			deps[r.Department] = struct{}{}
		}
		if r.Specimen != "" {
			specs[r.Specimen] = struct{}{}
		}
		if r.Container != "" {
			conts[r.Container] = struct{}{}
		}
	}
	return &ClinicalSummary{
		Departments: joinSorted(deps),
		Specimens:   joinSorted(specs),
		Containers:  joinSorted(conts),
	}, nil
}

func joinSorted(set map[string]struct{}) string {
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return strings.Join(vals, ", ")
}
