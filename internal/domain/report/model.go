package report

// PatientInfo is the patient snapshot frozen into a report. A billing
// whose patient record is missing gets placeholder fields instead of a
// generation failure.
type PatientInfo struct {
	PatientID int    `json:"patient_id"`
	Name      string `json:"patient_name"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	RefDoc    string `json:"referring_doctor,omitempty"`
}

// ClinicInfo is the tenant snapshot at generation time.
type ClinicInfo struct {
	TenantID int    `json:"tenant_id"`
	Name     string `json:"franchise_name"`
	SiteCode string `json:"site_code"`
}

// BillingHeader carries the invoice identity of the source billing.
type BillingHeader struct {
	BillingID     int    `json:"billing_id"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	InvoiceDate   string `json:"invoice_date,omitempty"`
	SIDNumber     string `json:"sid_number"`
}

// TestRow is one expanded result row. Profile sub-tests carry the parent
// name and their position within the expansion.
type TestRow struct {
	TestID            int     `json:"test_id"`
	TestName          string  `json:"test_name"`
	Department        string  `json:"department,omitempty"`
	Specimen          string  `json:"specimen,omitempty"`
	Container         string  `json:"container,omitempty"`
	Method            string  `json:"method,omitempty"`
	ReferenceRange    string  `json:"reference_range,omitempty"`
	ResultUnit        string  `json:"result_unit,omitempty"`
	Instructions      string  `json:"instructions,omitempty"`
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price"`
	Amount            float64 `json:"amount"`
	IsProfileSubtest  bool    `json:"is_profile_subtest"`
	ParentProfileName string  `json:"parent_profile_name,omitempty"`
	SubtestIndex      int     `json:"subtest_index,omitempty"`
	TotalSubtests     int     `json:"total_subtests,omitempty"`
}

// FinancialSummary carries the billing's own totals forward unchanged.
// The report snapshots; it never recalculates.
type FinancialSummary struct {
	BillAmount float64 `json:"bill_amount"`
	Discount   float64 `json:"discount"`
	GSTAmount  float64 `json:"gst_amount"`
	PaidAmount float64 `json:"paid_amount"`
	Balance    float64 `json:"balance"`
}

// Metadata summarises how well the billing items matched the catalog.
type Metadata struct {
	TotalTests           int     `json:"total_tests"`
	MatchedTestsCount    int     `json:"matched_tests_count"`
	UnmatchedTestsCount  int     `json:"unmatched_tests_count"`
	TestMatchSuccessRate float64 `json:"test_match_success_rate"`
}

// Report is the comprehensive snapshot generated from one billing.
// Regeneration replaces the content but keeps the report id, the SID and
// the original created_at.
type Report struct {
	ID             int              `json:"id"`
	BillingID      int              `json:"billing_id"`
	TenantID       int              `json:"tenant_id"`
	SIDNumber      string           `json:"sid_number"`
	GeneratedAt    string           `json:"generated_at"`
	CreatedAt      string           `json:"created_at"`
	PatientInfo    PatientInfo      `json:"patient_info"`
	ClinicInfo     ClinicInfo       `json:"clinic_info"`
	BillingHeader  BillingHeader    `json:"billing_header"`
	TestItems      []TestRow        `json:"test_items"`
	UnmatchedTests []string         `json:"unmatched_tests"`
	Financial      FinancialSummary `json:"financial_summary"`
	Metadata       Metadata         `json:"metadata"`
}
