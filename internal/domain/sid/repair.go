package sid

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/openlis/lis/pkg/flexnum"
)

// Entry identifies one record carrying a SID, for duplicate detection.
type Entry struct {
	Collection string `json:"collection"`
	RecordID   int    `json:"record_id"`
	BillingID  int    `json:"billing_id,omitempty"`
	TenantID   int    `json:"tenant_id"`
	SID        string `json:"sid_number"`
	CreatedAt  string `json:"created_at"`
}

// DuplicateGroup is a SID shared by more than one record, ordered oldest
// first by created_at.
type DuplicateGroup struct {
	SID     string  `json:"sid_number"`
	Entries []Entry `json:"entries"`
}

type rawRecord map[string]json.RawMessage

func (r rawRecord) intField(key string) int {
	raw, ok := r[key]
	if !ok {
		return 0
	}
	var n flexnum.Int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return int(n)
}

func (r rawRecord) stringField(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// FindDuplicates scans both record collections and groups records that
// share a SID. A report carries the same SID as the billing it was built
// from; that pairing is not a duplicate, so a report is counted only when
// its SID matches a billing other than its own. An empty result means the
// cross-franchise uniqueness invariant holds.
func (a *Allocator) FindDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	entries, _, err := a.loadEntries()
	if err != nil {
		return nil, err
	}

	billingSID := make(map[int]string)
	for _, e := range entries {
		if e.Collection == BillingCollection {
			billingSID[e.RecordID] = e.SID
		}
	}

	bySID := make(map[string][]Entry)
	for _, e := range entries {
		if e.SID == "" {
			continue
		}
		if e.Collection == ReportCollection && billingSID[e.BillingID] == e.SID {
			continue
		}
		bySID[e.SID] = append(bySID[e.SID], e)
	}

	var groups []DuplicateGroup
	for sid, members := range bySID {
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return parseCreatedAt(members[i].CreatedAt).Before(parseCreatedAt(members[j].CreatedAt))
		})
		groups = append(groups, DuplicateGroup{SID: sid, Entries: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].SID < groups[j].SID })
	return groups, nil
}

// Repair resolves duplicate SIDs: the oldest record in each group keeps
// the original SID and every other member gets a freshly allocated one.
// When a billing is reassigned its own report carries the fresh SID too,
// so the billing/report pairing stays intact. Touched collections are
// backed up before any write; if a write fails the backups are restored
// and the error reported.
func (a *Allocator) Repair(ctx context.Context) (int, error) {
	groups, err := a.FindDuplicates(ctx)
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}

	_, docs, err := a.loadEntries()
	if err != nil {
		return 0, err
	}

	// Mutate in memory first; nothing touches disk until every fresh SID
	// has landed on its record.
	touched := make(map[string]bool, 2)
	reassigned := 0
	var issued []string
	for _, g := range groups {
		for _, e := range g.Entries[1:] {
			fresh, fallback, err := a.Allocate(ctx, e.TenantID)
			if err != nil {
				a.releaseAll(issued)
				return 0, fmt.Errorf("reallocate for %s record %d: %w", e.Collection, e.RecordID, err)
			}
			issued = append(issued, fresh)
			if fallback {
				a.logger.Warn().Str("old", g.SID).Str("new", fresh).Msg("repair issued a temporary sid")
			}
			if !a.setRecordSID(docs[e.Collection], e.RecordID, fresh) {
				a.releaseAll(issued)
				return 0, fmt.Errorf("record %d not found in %s during repair", e.RecordID, e.Collection)
			}
			touched[e.Collection] = true
			if e.Collection == BillingCollection {
				if syncReportSIDs(docs[ReportCollection], e.RecordID, fresh) {
					touched[ReportCollection] = true
				}
			}
			a.logger.Info().
				Str("collection", e.Collection).
				Int("record_id", e.RecordID).
				Str("old", g.SID).
				Str("new", fresh).
				Msg("reassigned duplicate sid")
			reassigned++
		}
	}

	backups := make(map[string]string, len(touched))
	for coll := range touched {
		path, err := a.st.Backup(coll)
		if err != nil {
			a.releaseAll(issued)
			return 0, fmt.Errorf("backup %s: %w", coll, err)
		}
		backups[coll] = path
	}

	for coll := range touched {
		if err := a.st.Write(coll, docs[coll]); err != nil {
			a.releaseAll(issued)
			for name, path := range backups {
				if rerr := a.st.Restore(name, path); rerr != nil {
					a.logger.Error().Err(rerr).Str("collection", name).Msg("backup restore failed")
				}
			}
			return 0, fmt.Errorf("write %s: %w", coll, err)
		}
	}

	a.releaseAll(issued)
	return reassigned, nil
}

// syncReportSIDs rewrites the SID on every report built from the given
// billing, including the denormalised copy inside billing_header.
func syncReportSIDs(reports []rawRecord, billingID int, sid string) bool {
	encoded, err := json.Marshal(sid)
	if err != nil {
		return false
	}
	updated := false
	for _, r := range reports {
		if r.intField("billing_id") != billingID {
			continue
		}
		r["sid_number"] = encoded
		if raw, ok := r["billing_header"]; ok {
			var header map[string]json.RawMessage
			if err := json.Unmarshal(raw, &header); err == nil {
				header["sid_number"] = encoded
				if reenc, err := json.Marshal(header); err == nil {
					r["billing_header"] = reenc
				}
			}
		}
		updated = true
	}
	return updated
}

func (a *Allocator) releaseAll(sids []string) {
	for _, s := range sids {
		a.Release(s)
	}
}

// loadEntries reads both collections as raw documents and projects the
// fields duplicate detection needs.
func (a *Allocator) loadEntries() ([]Entry, map[string][]rawRecord, error) {
	entries := make([]Entry, 0)
	docs := make(map[string][]rawRecord, 2)
	for _, coll := range []string{BillingCollection, ReportCollection} {
		var recs []rawRecord
		if err := a.st.ReadInto(coll, &recs); err != nil {
			return nil, nil, err
		}
		docs[coll] = recs
		for _, r := range recs {
			entries = append(entries, Entry{
				Collection: coll,
				RecordID:   r.intField("id"),
				BillingID:  r.intField("billing_id"),
				TenantID:   r.intField("tenant_id"),
				SID:        r.stringField("sid_number"),
				CreatedAt:  r.stringField("created_at"),
			})
		}
	}
	return entries, docs, nil
}

func (a *Allocator) setRecordSID(recs []rawRecord, recordID int, sid string) bool {
	for _, r := range recs {
		if r.intField("id") != recordID {
			continue
		}
		encoded, err := json.Marshal(sid)
		if err != nil {
			return false
		}
		r["sid_number"] = encoded
		return true
	}
	return false
}

// parseCreatedAt tolerates the timestamp layouts that appear in legacy
// data; unparseable values sort oldest so they keep their SID.
func parseCreatedAt(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
