package patient

import "github.com/openlis/lis/pkg/flexnum"

// Patient is the read-side snapshot used for report composition. Patient
// CRUD lives outside this system.
type Patient struct {
	ID      int           `json:"id"`
	Name    string        `json:"patient_name"`
	Age     flexnum.Int   `json:"age"`
	Gender  string        `json:"gender"`
	Phone   string        `json:"phone"`
	Email   string        `json:"email,omitempty"`
	Address string        `json:"address,omitempty"`
	RefDoc  string        `json:"referring_doctor,omitempty"`
	Balance flexnum.Float `json:"balance,omitempty"`
}
