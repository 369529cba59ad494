// Package sid allocates franchise-scoped sample identification numbers.
// A SID is unique across the billings and billing_reports collections and
// across numbers handed out in this process that are not yet persisted.
package sid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/platform/store"
	"github.com/openlis/lis/pkg/flexnum"
)

const (
	BillingCollection = "billings"
	ReportCollection  = "billing_reports"

	// SequenceCollection is an advisory per-tenant high-water mark. It
	// speeds the scan but is never authoritative; the union of SIDs in
	// the two record collections is.
	SequenceCollection = "sid_sequences"
)

var (
	ErrEmpty  = errors.New("sid is empty")
	ErrPrefix = errors.New("sid does not carry the tenant site code")
	ErrFormat = errors.New("sid numeric part is not numeric")
	ErrLength = errors.New("sid numeric part has the wrong length")

	// ErrCollision is reported once the retry cap is exhausted; the
	// allocator then falls back to a timestamp-derived TMP number.
	ErrCollision = errors.New("sid collision persisted past retry cap")
)

// record is the projection of a billing or report the allocator needs.
// Scanning through a narrow struct keeps this package independent of the
// full billing and report models.
type record struct {
	TenantID flexnum.Int `json:"tenant_id"`
	SID      string      `json:"sid_number"`
}

type Allocator struct {
	st     *store.Store
	reg    *franchise.Registry
	logger zerolog.Logger

	maxRetries int
	retryBase  time.Duration

	mu         sync.Mutex
	inflight   map[string]inflightEntry
	sessionMax map[int]int
}

type inflightEntry struct {
	tenantID int
	suffix   int
}

func NewAllocator(st *store.Store, reg *franchise.Registry, logger zerolog.Logger, maxRetries int, retryBase time.Duration) *Allocator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBase <= 0 {
		retryBase = 100 * time.Millisecond
	}
	return &Allocator{
		st:         st,
		reg:        reg,
		logger:     logger,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		inflight:   make(map[string]inflightEntry),
		sessionMax: make(map[int]int),
	}
}

// Allocate hands out the next SID for the tenant. The returned bool is
// true when the retry cap was exhausted and a TMP fallback was issued.
// The SID stays in the in-flight set until Release is called; callers
// release after persisting the record carrying it, or on failure.
func (a *Allocator) Allocate(ctx context.Context, tenantID int) (string, bool, error) {
	tenant, err := a.reg.Get(ctx, tenantID)
	if err != nil {
		return "", false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	persisted, maxPersisted, err := a.scanTenant(tenant)
	if err != nil {
		return "", false, err
	}

	next := maxPersisted
	if m := a.sessionMax[tenantID]; m > next {
		next = m
	}
	if m := a.cachedSequence(tenantID); m > next {
		next = m
	}
	next++

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		candidate := Format(tenant, next)
		_, taken := a.inflight[candidate]
		if !persisted[candidate] && !taken {
			a.inflight[candidate] = inflightEntry{tenantID: tenantID, suffix: next}
			a.sessionMax[tenantID] = next
			a.saveSequence(tenantID, next)
			return candidate, false, nil
		}
		if attempt == a.maxRetries {
			break
		}
		next++
		wait := a.retryBase * (1 << attempt)
		a.logger.Warn().
			Int("tenant_id", tenantID).
			Str("candidate", candidate).
			Dur("backoff", wait).
			Msg("sid candidate collided, retrying")
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(wait):
		}
	}

	fallback := fmt.Sprintf("TMP%04d", time.Now().UnixMilli()%10000)
	a.inflight[fallback] = inflightEntry{tenantID: tenantID}
	a.logger.Warn().
		Int("tenant_id", tenantID).
		Str("sid", fallback).
		Err(ErrCollision).
		Msg("issuing temporary fallback sid")
	return fallback, true, nil
}

// Release drops a SID from the in-flight set. Call it once the record
// carrying the SID is persisted, or when the request fails before the
// write; forgetting to release skips numbers for later requests. When the
// released SID is the tenant's session high-water mark, the mark and the
// advisory cache are rolled back so the number can be reissued if it was
// never persisted.
func (a *Allocator) Release(sid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.inflight[sid]
	if !ok {
		return
	}
	delete(a.inflight, sid)
	if e.suffix > 0 && a.sessionMax[e.tenantID] == e.suffix {
		a.sessionMax[e.tenantID] = e.suffix - 1
		a.lowerSequence(e.tenantID, e.suffix-1)
	}
}

// IsUnique reports whether the SID appears in neither persistence store
// nor the in-flight set.
func (a *Allocator) IsUnique(ctx context.Context, sid string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uniqueLocked(sid)
}

// Reserve claims an explicitly supplied SID. The uniqueness check and the
// in-flight registration form one critical section, so two requests
// carrying the same SID cannot both pass. false means the SID is taken.
// A reserved SID must be released like an allocated one.
func (a *Allocator) Reserve(ctx context.Context, sid string, tenantID int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	unique, err := a.uniqueLocked(sid)
	if err != nil || !unique {
		return false, err
	}
	a.inflight[sid] = inflightEntry{tenantID: tenantID}
	return true, nil
}

func (a *Allocator) uniqueLocked(sid string) (bool, error) {
	if _, taken := a.inflight[sid]; taken {
		return false, nil
	}
	for _, coll := range []string{BillingCollection, ReportCollection} {
		var recs []record
		if err := a.st.ReadInto(coll, &recs); err != nil {
			return false, err
		}
		for _, r := range recs {
			if r.SID == sid {
				return false, nil
			}
		}
	}
	return true, nil
}

// Validate checks a SID against the tenant's format rules.
func Validate(sid string, tenant *franchise.Tenant) error {
	if strings.TrimSpace(sid) == "" {
		return ErrEmpty
	}
	digits := sid
	if tenant.UsePrefix {
		if !strings.HasPrefix(sid, tenant.SiteCode) {
			return fmt.Errorf("sid %q: %w", sid, ErrPrefix)
		}
		digits = sid[len(tenant.SiteCode):]
	}
	if digits == "" || !allDigits(digits) {
		return fmt.Errorf("sid %q: %w", sid, ErrFormat)
	}
	if tenant.UsePrefix {
		if len(digits) < 3 {
			return fmt.Errorf("sid %q: %w", sid, ErrLength)
		}
	} else if len(digits) != 3 {
		return fmt.Errorf("sid %q: %w", sid, ErrLength)
	}
	return nil
}

// Format renders the SID for a numeric suffix, zero-padded to at least
// three digits and growing naturally past 999.
func Format(tenant *franchise.Tenant, n int) string {
	if tenant.UsePrefix {
		return fmt.Sprintf("%s%03d", tenant.SiteCode, n)
	}
	return fmt.Sprintf("%03d", n)
}

// ParseSuffix extracts the numeric suffix of a SID for the tenant.
// Malformed entries report ok=false and are skipped by scans.
func ParseSuffix(sid string, tenant *franchise.Tenant) (int, bool) {
	digits := sid
	if tenant.UsePrefix {
		if !strings.HasPrefix(sid, tenant.SiteCode) {
			return 0, false
		}
		digits = sid[len(tenant.SiteCode):]
	}
	if digits == "" || !allDigits(digits) {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// scanTenant snapshots the tenant's persisted SID set across both record
// collections and reports the highest parseable suffix.
func (a *Allocator) scanTenant(tenant *franchise.Tenant) (map[string]bool, int, error) {
	seen := make(map[string]bool)
	max := 0
	for _, coll := range []string{BillingCollection, ReportCollection} {
		var recs []record
		if err := a.st.ReadInto(coll, &recs); err != nil {
			return nil, 0, err
		}
		for _, r := range recs {
			if int(r.TenantID) != tenant.ID || r.SID == "" {
				continue
			}
			seen[r.SID] = true
			if n, ok := ParseSuffix(r.SID, tenant); ok && n > max {
				max = n
			}
		}
	}
	return seen, max, nil
}

func (a *Allocator) cachedSequence(tenantID int) int {
	seq := make(map[string]int)
	if err := a.st.ReadInto(SequenceCollection, &seq); err != nil {
		// Advisory only; a corrupt cache never blocks allocation.
		a.logger.Warn().Err(err).Msg("sid sequence cache unreadable, ignoring")
		return 0
	}
	return seq[strconv.Itoa(tenantID)]
}

func (a *Allocator) saveSequence(tenantID, n int) {
	err := a.st.Update(SequenceCollection, func() (interface{}, error) {
		seq := make(map[string]int)
		if err := a.st.ReadInto(SequenceCollection, &seq); err != nil {
			seq = make(map[string]int)
		}
		if seq[strconv.Itoa(tenantID)] >= n {
			return nil, nil
		}
		seq[strconv.Itoa(tenantID)] = n
		return seq, nil
	})
	if err != nil {
		a.logger.Warn().Err(err).Int("tenant_id", tenantID).Msg("sid sequence cache write failed")
	}
}

func (a *Allocator) lowerSequence(tenantID, n int) {
	err := a.st.Update(SequenceCollection, func() (interface{}, error) {
		seq := make(map[string]int)
		if err := a.st.ReadInto(SequenceCollection, &seq); err != nil {
			return nil, nil
		}
		key := strconv.Itoa(tenantID)
		if seq[key] <= n {
			return nil, nil
		}
		seq[key] = n
		return seq, nil
	})
	if err != nil {
		a.logger.Warn().Err(err).Int("tenant_id", tenantID).Msg("sid sequence cache rollback failed")
	}
}
