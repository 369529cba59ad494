package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/openlis/lis/pkg/flexnum"
)

// Test is one entry of the test master catalog.
type Test struct {
	ID              int           `json:"id"`
	TestName        string        `json:"testName"`
	Department      string        `json:"department"`
	HMSCode         string        `json:"hmsCode,omitempty"`
	PrimarySpecimen string        `json:"primarySpecimen"`
	Container       string        `json:"container"`
	Method          string        `json:"method,omitempty"`
	ReferenceRange  string        `json:"reference_range,omitempty"`
	ResultUnit      string        `json:"result_unit,omitempty"`
	TestPrice       flexnum.Float `json:"test_price"`
	Instructions    string        `json:"instructions,omitempty"`
}

// Profile is a panel sold as one line item and expanded into sub-tests.
type Profile struct {
	ID        string        `json:"id"`
	Name      string        `json:"test_profile"`
	TestItems []ProfileItem `json:"testItems"`
}

// ProfileItem references one sub-test of a profile. testName is a display
// cache; the catalog entry is authoritative.
type ProfileItem struct {
	TestID   flexnum.Int   `json:"test_id"`
	TestName string        `json:"testName,omitempty"`
	Amount   flexnum.Float `json:"amount"`
}

// Profile ids appear as strings (UUIDs) or legacy integers; both are
// normalised to their string form on read.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	aux := struct {
		*alias
		ID json.RawMessage `json:"id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = NormalizeID(aux.ID)
	return nil
}

// NormalizeID renders a raw JSON id (string or number) as a canonical
// comparison string.
func NormalizeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// NormalizeName lower-cases and collapses whitespace for name lookups.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
