package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is a ledger-style account. AccountType drives default routing for
// unreferenced inbound payments.
type Account struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type AccountTransaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Reference string          `json:"reference"`
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Opening   decimal.Decimal `json:"opening_balance"`
	Closing   decimal.Decimal `json:"closing_balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type LoanStatus string

const (
	LoanActive LoanStatus = "ACTIVE"
	LoanClosed LoanStatus = "CLOSED"
)

type Loan struct {
	ID                 string          `json:"id"`
	CustomerID         string          `json:"customer_id"`
	Reference          string          `json:"reference"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Status             LoanStatus      `json:"status"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type LoanRepayment struct {
	ID                string          `json:"id"`
	LoanID            string          `json:"loan_id"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalReference string          `json:"external_reference"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	CreatedAt         time.Time       `json:"created_at"`
}

type SavingsAccount struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SavingsTransaction struct {
	ID               string          `json:"id"`
	SavingsAccountID string          `json:"savings_account_id"`
	Reference        string          `json:"reference"`
	Direction        Direction       `json:"direction"`
	Amount           decimal.Decimal `json:"amount"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
	CreatedAt        time.Time       `json:"created_at"`
}
