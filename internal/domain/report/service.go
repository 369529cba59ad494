package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openlis/lis/internal/platform/auth"
)

// ErrOutOfScope marks a report that exists but is outside the caller's
// tenant visibility.
var ErrOutOfScope = errors.New("record outside caller scope")

// Criteria narrows a report search. Zero-valued fields are ignored; SID
// matches by prefix so "MYD" finds a whole franchise.
type Criteria struct {
	SID           string
	Patient       string
	TenantID      int
	From          string
	To            string
	InvoiceNumber string
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search returns the reports matching the criteria and visible to the
// caller, newest generation first.
func (s *Service) Search(ctx context.Context, cr Criteria, scope auth.Scope) ([]Report, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	from, fromOK := parseDay(cr.From, false)
	to, toOK := parseDay(cr.To, true)

	matched := make([]Report, 0, len(all))
	for _, r := range all {
		if !scope.Allows(r.TenantID) {
			continue
		}
		if cr.TenantID != 0 && r.TenantID != cr.TenantID {
			continue
		}
		if cr.SID != "" && !strings.HasPrefix(r.SIDNumber, cr.SID) {
			continue
		}
		if cr.Patient != "" && !strings.Contains(strings.ToLower(r.PatientInfo.Name), strings.ToLower(cr.Patient)) {
			continue
		}
		if cr.InvoiceNumber != "" && r.BillingHeader.InvoiceNumber != cr.InvoiceNumber {
			continue
		}
		if fromOK || toOK {
			gen, ok := parseStamp(r.GeneratedAt)
			if !ok {
				continue
			}
			if fromOK && gen.Before(from) {
				continue
			}
			if toOK && gen.After(to) {
				continue
			}
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].GeneratedAt > matched[j].GeneratedAt
	})
	return matched, nil
}

func (s *Service) GetByID(ctx context.Context, id int, scope auth.Scope) (*Report, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(r.TenantID) {
		return nil, fmt.Errorf("report %d: %w", id, ErrOutOfScope)
	}
	return r, nil
}

func (s *Service) GetBySID(ctx context.Context, sid string, scope auth.Scope) (*Report, error) {
	r, err := s.repo.GetBySID(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(r.TenantID) {
		return nil, fmt.Errorf("report for sid %q: %w", sid, ErrOutOfScope)
	}
	return r, nil
}

// parseDay reads a date bound; a bare day expands to its start or end.
func parseDay(s string, end bool) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if end {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	return parseStamp(s)
}

func parseStamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
