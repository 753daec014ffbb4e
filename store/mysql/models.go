package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// Persistence models. Domain types never carry gorm tags; these structs
// are converted at the repository boundary.

type accountModel struct {
	ID             int64           `gorm:"primaryKey;column:id"`
	AccountNumber  string          `gorm:"size:20;not null;uniqueIndex;column:account_number"`
	Phone          string          `gorm:"size:20;not null;uniqueIndex;column:phone"`
	FullName       string          `gorm:"size:255;not null;default:'';column:full_name"`
	Email          string          `gorm:"size:255;not null;default:'';column:email"`
	GroupName      string          `gorm:"size:255;not null;default:'';column:group_name"`
	LoanBalance    decimal.Decimal `gorm:"type:decimal(15,2);not null;column:loan_balance"`
	SavingsBalance decimal.Decimal `gorm:"type:decimal(15,2);not null;column:savings_balance"`
	TotalBorrowed  decimal.Decimal `gorm:"type:decimal(15,2);not null;column:total_borrowed"`
	TotalRepaid    decimal.Decimal `gorm:"type:decimal(15,2);not null;column:total_repaid"`
	TotalSavings   decimal.Decimal `gorm:"type:decimal(15,2);not null;column:total_savings"`
	Status         string          `gorm:"size:16;not null;default:'active';column:status"`
	CreatedAt      time.Time       `gorm:"not null;index;autoCreateTime:false;column:created_at"`
	UpdatedAt      time.Time       `gorm:"not null;autoUpdateTime:false;column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type transactionModel struct {
	ID                int64           `gorm:"primaryKey;column:id"`
	TransactionID     string          `gorm:"size:32;not null;uniqueIndex;column:transaction_id"`
	AccountID         int64           `gorm:"not null;index:idx_transactions_account_date,priority:1;column:account_id"`
	LoanApplicationID *int64          `gorm:"index;column:loan_application_id"`
	Type              string          `gorm:"size:32;not null;index;column:type"`
	Field             string          `gorm:"size:16;not null;column:field"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2);not null;column:amount"`
	BalanceBefore     decimal.Decimal `gorm:"type:decimal(15,2);not null;column:balance_before"`
	BalanceAfter      decimal.Decimal `gorm:"type:decimal(15,2);not null;column:balance_after"`
	Description       string          `gorm:"size:500;not null;default:'';column:description"`
	Reference         string          `gorm:"size:100;not null;default:'';index;column:reference"`
	PaymentMethod     string          `gorm:"size:32;not null;column:payment_method"`
	ReversesID        string          `gorm:"size:32;not null;default:'';column:reverses_id"`
	Status            string          `gorm:"size:16;not null;column:status"`
	TransactionDate   time.Time       `gorm:"not null;index:idx_transactions_account_date,priority:2;column:transaction_date"`
}

func (transactionModel) TableName() string { return "transactions" }

type applicationModel struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	ApplicationID string    `gorm:"size:32;not null;uniqueIndex;column:application_id"`
	FullName      string    `gorm:"size:255;not null;column:full_name"`
	Email         string    `gorm:"size:255;not null;column:email"`
	Phone         string    `gorm:"size:20;not null;index;column:phone"`
	Gender        string    `gorm:"size:16;not null;column:gender"`
	DateOfBirth   time.Time `gorm:"not null;column:date_of_birth"`
	MaritalStatus string    `gorm:"size:16;not null;column:marital_status"`
	Religion      string    `gorm:"size:64;not null;default:'';column:religion"`
	Dependents    int       `gorm:"not null;default:0;column:dependents"`
	State         string    `gorm:"size:64;not null;column:state"`
	LGA           string    `gorm:"size:128;not null;column:lga"`
	HomeAddress   string    `gorm:"size:500;not null;column:home_address"`
	OfficeAddress string    `gorm:"size:500;not null;default:'';column:office_address"`
	IDCardType    string    `gorm:"size:64;not null;default:'';column:id_card_type"`
	IDCardNumber  string    `gorm:"size:64;not null;default:'';column:id_card_number"`
	Position      string    `gorm:"size:128;not null;default:'';column:position"`
	GroupName     string    `gorm:"size:255;not null;default:'';column:group_name"`

	LoanPurpose    string          `gorm:"size:1000;not null;column:loan_purpose"`
	LoanAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null;column:loan_amount"`
	InterestRate   decimal.Decimal `gorm:"type:decimal(7,4);not null;column:interest_rate"`
	DurationMonths int             `gorm:"not null;column:duration_months"`
	RepaymentRate  string          `gorm:"size:16;not null;column:repayment_rate"`
	TotalPayable   decimal.Decimal `gorm:"type:decimal(15,2);not null;column:total_payable"`
	MonthlyPayment decimal.Decimal `gorm:"type:decimal(15,2);not null;column:monthly_payment"`
	PaymentAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null;column:payment_amount"`

	BankName      string `gorm:"size:128;not null;column:bank_name"`
	AccountNumber string `gorm:"size:20;not null;column:account_number"`
	AccountName   string `gorm:"size:255;not null;column:account_name"`
	BVN           string `gorm:"size:11;not null;column:bvn"`

	GuarantorName     string `gorm:"size:255;not null;column:guarantor_name"`
	GuarantorPhone    string `gorm:"size:20;not null;column:guarantor_phone"`
	GuarantorEmail    string `gorm:"size:255;not null;default:'';column:guarantor_email"`
	GuarantorAddress  string `gorm:"size:500;not null;column:guarantor_address"`
	GuarantorIDType   string `gorm:"size:64;not null;default:'';column:guarantor_id_type"`
	GuarantorIDNumber string `gorm:"size:64;not null;default:'';column:guarantor_id_number"`

	Status      string     `gorm:"size:16;not null;default:'pending';index;column:status"`
	AdminNotes  string     `gorm:"size:2000;not null;default:'';column:admin_notes"`
	DisbursedAt *time.Time `gorm:"column:disbursed_at"`
	CreatedAt   time.Time  `gorm:"not null;index;autoCreateTime:false;column:created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime:false;column:updated_at"`
}

func (applicationModel) TableName() string { return "loan_applications" }

// =============================================================================
// CONVERSION
// =============================================================================

func fromAccount(a *ledger.Account) accountModel {
	return accountModel{
		ID:             a.ID,
		AccountNumber:  a.AccountNumber,
		Phone:          a.Phone,
		FullName:       a.FullName,
		Email:          a.Email,
		GroupName:      a.GroupName,
		LoanBalance:    a.LoanBalance,
		SavingsBalance: a.SavingsBalance,
		TotalBorrowed:  a.TotalBorrowed,
		TotalRepaid:    a.TotalRepaid,
		TotalSavings:   a.TotalSavings,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (m accountModel) toDomain() ledger.Account {
	return ledger.Account{
		ID:             m.ID,
		AccountNumber:  m.AccountNumber,
		Phone:          m.Phone,
		FullName:       m.FullName,
		Email:          m.Email,
		GroupName:      m.GroupName,
		LoanBalance:    m.LoanBalance,
		SavingsBalance: m.SavingsBalance,
		TotalBorrowed:  m.TotalBorrowed,
		TotalRepaid:    m.TotalRepaid,
		TotalSavings:   m.TotalSavings,
		Status:         ledger.AccountStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func fromTransaction(t *ledger.Transaction) transactionModel {
	return transactionModel{
		ID:                t.ID,
		TransactionID:     t.TransactionID,
		AccountID:         t.AccountID,
		LoanApplicationID: t.LoanApplicationID,
		Type:              string(t.Type),
		Field:             string(t.Field),
		Amount:            t.Amount,
		BalanceBefore:     t.BalanceBefore,
		BalanceAfter:      t.BalanceAfter,
		Description:       t.Description,
		Reference:         t.Reference,
		PaymentMethod:     string(t.PaymentMethod),
		ReversesID:        t.ReversesID,
		Status:            string(t.Status),
		TransactionDate:   t.TransactionDate,
	}
}

func (m transactionModel) toDomain() ledger.Transaction {
	return ledger.Transaction{
		ID:                m.ID,
		TransactionID:     m.TransactionID,
		AccountID:         m.AccountID,
		LoanApplicationID: m.LoanApplicationID,
		Type:              ledger.TxType(m.Type),
		Field:             ledger.BalanceField(m.Field),
		Amount:            m.Amount,
		BalanceBefore:     m.BalanceBefore,
		BalanceAfter:      m.BalanceAfter,
		Description:       m.Description,
		Reference:         m.Reference,
		PaymentMethod:     ledger.PaymentMethod(m.PaymentMethod),
		ReversesID:        m.ReversesID,
		Status:            ledger.TxStatus(m.Status),
		TransactionDate:   m.TransactionDate,
	}
}

func fromApplication(a *application.LoanApplication) applicationModel {
	m := applicationModel{
		ID:                a.ID,
		ApplicationID:     a.ApplicationID,
		FullName:          a.FullName,
		Email:             a.Email,
		Phone:             a.Phone,
		Gender:            a.Gender,
		DateOfBirth:       a.DateOfBirth,
		MaritalStatus:     a.MaritalStatus,
		Religion:          a.Religion,
		Dependents:        a.Dependents,
		State:             a.State,
		LGA:               a.LGA,
		HomeAddress:       a.HomeAddress,
		OfficeAddress:     a.OfficeAddress,
		IDCardType:        a.IDCardType,
		IDCardNumber:      a.IDCardNumber,
		Position:          a.Position,
		GroupName:         a.GroupName,
		LoanPurpose:       a.LoanPurpose,
		LoanAmount:        a.LoanAmount,
		InterestRate:      a.InterestRate,
		DurationMonths:    a.DurationMonths,
		RepaymentRate:     string(a.RepaymentRate),
		TotalPayable:      a.TotalPayable,
		MonthlyPayment:    a.MonthlyPayment,
		PaymentAmount:     a.PaymentAmount,
		BankName:          a.BankName,
		AccountNumber:     a.AccountNumber,
		AccountName:       a.AccountName,
		BVN:               a.BVN,
		GuarantorName:     a.GuarantorName,
		GuarantorPhone:    a.GuarantorPhone,
		GuarantorEmail:    a.GuarantorEmail,
		GuarantorAddress:  a.GuarantorAddress,
		GuarantorIDType:   a.GuarantorIDType,
		GuarantorIDNumber: a.GuarantorIDNumber,
		Status:            string(a.Status),
		AdminNotes:        a.AdminNotes,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if !a.DisbursedAt.IsZero() {
		t := a.DisbursedAt
		m.DisbursedAt = &t
	}
	return m
}

func (m applicationModel) toDomain() application.LoanApplication {
	a := application.LoanApplication{
		ID:                m.ID,
		ApplicationID:     m.ApplicationID,
		FullName:          m.FullName,
		Email:             m.Email,
		Phone:             m.Phone,
		Gender:            m.Gender,
		DateOfBirth:       m.DateOfBirth,
		MaritalStatus:     m.MaritalStatus,
		Religion:          m.Religion,
		Dependents:        m.Dependents,
		State:             m.State,
		LGA:               m.LGA,
		HomeAddress:       m.HomeAddress,
		OfficeAddress:     m.OfficeAddress,
		IDCardType:        m.IDCardType,
		IDCardNumber:      m.IDCardNumber,
		Position:          m.Position,
		GroupName:         m.GroupName,
		LoanPurpose:       m.LoanPurpose,
		LoanAmount:        m.LoanAmount,
		InterestRate:      m.InterestRate,
		DurationMonths:    m.DurationMonths,
		RepaymentRate:     loancalc.Frequency(m.RepaymentRate),
		TotalPayable:      m.TotalPayable,
		MonthlyPayment:    m.MonthlyPayment,
		PaymentAmount:     m.PaymentAmount,
		BankName:          m.BankName,
		AccountNumber:     m.AccountNumber,
		AccountName:       m.AccountName,
		BVN:               m.BVN,
		GuarantorName:     m.GuarantorName,
		GuarantorPhone:    m.GuarantorPhone,
		GuarantorEmail:    m.GuarantorEmail,
		GuarantorAddress:  m.GuarantorAddress,
		GuarantorIDType:   m.GuarantorIDType,
		GuarantorIDNumber: m.GuarantorIDNumber,
		Status:            application.Status(m.Status),
		AdminNotes:        m.AdminNotes,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.DisbursedAt != nil {
		a.DisbursedAt = *m.DisbursedAt
	}
	return a
}
