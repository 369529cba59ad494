package billing

import (
	"encoding/json"
	"strconv"

	"github.com/openlis/lis/internal/domain/catalog"
	"github.com/openlis/lis/pkg/flexnum"
)

// ItemKind tags a billing line as an individual test or a profile. Legacy
// rows carry no tag; the shape of test_id and the denormalised
// test_master_data decide on read.
type ItemKind string

const (
	ItemTest    ItemKind = "test"
	ItemProfile ItemKind = "profile"
)

// Item is one billed line. Exactly one of TestID and ProfileID is
// meaningful, selected by Kind.
type Item struct {
	Kind      ItemKind      `json:"kind"`
	TestID    int           `json:"-"`
	ProfileID string        `json:"-"`
	TestName  string        `json:"test_name"`
	Quantity  int           `json:"quantity"`
	Price     flexnum.Float `json:"price"`
	Amount    flexnum.Float `json:"amount"`
}

type itemWire struct {
	Kind           ItemKind        `json:"kind,omitempty"`
	TestID         json.RawMessage `json:"test_id"`
	TestName       string          `json:"test_name"`
	Quantity       flexnum.Int     `json:"quantity"`
	Price          flexnum.Float   `json:"price"`
	Amount         flexnum.Float   `json:"amount"`
	TestMasterData *struct {
		Type string `json:"type"`
	} `json:"test_master_data,omitempty"`
}

// Legacy rows mark profiles either by a UUID-shaped test_id or by
// test_master_data.type; tagged rows carry kind explicitly. All three
// forms normalise to the tagged variant.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w itemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := catalog.NormalizeID(w.TestID)
	isProfile := w.Kind == ItemProfile ||
		(w.TestMasterData != nil && w.TestMasterData.Type == "profile") ||
		catalog.IsProfileShapedID(id)

	it.TestName = w.TestName
	it.Quantity = int(w.Quantity)
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	it.Price = w.Price
	it.Amount = w.Amount
	if isProfile {
		it.Kind = ItemProfile
		it.ProfileID = id
		return nil
	}
	it.Kind = ItemTest
	it.TestID, _ = strconv.Atoi(id)
	return nil
}

func (it Item) MarshalJSON() ([]byte, error) {
	w := itemWire{
		Kind:     it.Kind,
		TestName: it.TestName,
		Quantity: flexnum.Int(it.Quantity),
		Price:    it.Price,
		Amount:   it.Amount,
	}
	var err error
	if it.Kind == ItemProfile {
		w.TestID, err = json.Marshal(it.ProfileID)
	} else {
		w.TestID, err = json.Marshal(it.TestID)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Billing is one invoice. The SID is set at creation and never changes;
// payment fields are the only mutable part.
type Billing struct {
	ID            int           `json:"id"`
	TenantID      int           `json:"tenant_id"`
	PatientID     int           `json:"patient_id"`
	SIDNumber     string        `json:"sid_number"`
	SIDFallback   bool          `json:"sid_fallback,omitempty"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	InvoiceDate   string        `json:"invoice_date,omitempty"`
	Items         []Item        `json:"items"`
	BillAmount    flexnum.Float `json:"bill_amount"`
	Discount      flexnum.Float `json:"discount"`
	GSTAmount     flexnum.Float `json:"gst_amount"`
	PaidAmount    flexnum.Float `json:"paid_amount"`
	Balance       flexnum.Float `json:"balance"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at,omitempty"`
}
