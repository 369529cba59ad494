package franchise

import "encoding/json"

// Tenant is an operating unit (hub or franchise) with its own SID prefix.
// Registration and site-code assignment happen in external tooling; this
// system only reads the registry.
type Tenant struct {
	ID        int    `json:"id"`
	Name      string `json:"franchise_name"`
	SiteCode  string `json:"site_code"`
	UsePrefix bool   `json:"use_prefix"`
	IsHub     bool   `json:"is_hub"`
	IsActive  bool   `json:"is_active"`
}

// use_prefix defaults to true when the field is absent from the record.
func (t *Tenant) UnmarshalJSON(data []byte) error {
	type alias Tenant
	aux := struct {
		*alias
		UsePrefix *bool `json:"use_prefix"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.UsePrefix == nil {
		t.UsePrefix = true
	} else {
		t.UsePrefix = *aux.UsePrefix
	}
	return nil
}
