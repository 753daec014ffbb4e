package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Text is a raw inbound form value. It decodes from a JSON string, a JSON
// number or null, and keeps the original text so numeric parsing happens
// explicitly in the validator rather than being coerced on decode.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = Text(n.String())
	default:
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	return nil
}

// String returns the trimmed value.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// Payload is an inbound loan application exactly as submitted.
type Payload struct {
	FullName      Text `json:"full_name"`
	Email         Text `json:"email"`
	Phone         Text `json:"phone"`
	Gender        Text `json:"gender"`
	DateOfBirth   Text `json:"date_of_birth"`
	MaritalStatus Text `json:"marital_status"`
	Religion      Text `json:"religion"`
	Dependents    Text `json:"dependents"`
	State         Text `json:"state"`
	LGA           Text `json:"lga"`
	HomeAddress   Text `json:"home_address"`
	OfficeAddress Text `json:"office_address"`
	IDCardType    Text `json:"id_card_type"`
	IDCardNumber  Text `json:"id_card_number"`
	Position      Text `json:"position"`
	GroupName     Text `json:"group_name"`

	LoanPurpose    Text `json:"loan_purpose"`
	LoanAmount     Text `json:"loan_amount"`
	InterestRate   Text `json:"interest_rate"`
	DurationMonths Text `json:"duration_months"`
	RepaymentRate  Text `json:"repayment_rate"`

	BankName      Text `json:"bank_name"`
	AccountNumber Text `json:"account_number"`
	AccountName   Text `json:"account_name"`
	BVN           Text `json:"bvn"`

	GuarantorName     Text `json:"guarantor_name"`
	GuarantorPhone    Text `json:"guarantor_phone"`
	GuarantorEmail    Text `json:"guarantor_email"`
	GuarantorAddress  Text `json:"guarantor_address"`
	GuarantorIDType   Text `json:"guarantor_id_type"`
	GuarantorIDNumber Text `json:"guarantor_id_number"`
}
