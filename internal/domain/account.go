package domain

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Account states.
const (
	AccountStatusActive  = "active"
	AccountStatusBlocked = "blocked"
)

// Account types.
const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

// DefaultCurrency is used when an account row carries no currency.
const DefaultCurrency = "USD"

// Transaction types and states.
const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusReversed  = "reversed"
)

// Account represents a bank balance record. Balance is in cents.
type Account struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AccountNumber string     `json:"account_number"`
	AccountType   string     `json:"account_type"`
	Balance       int64      `json:"balance"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Transaction is an internal ledger log entry, one per balance mutation.
type Transaction struct {
	ID              uuid.UUID `json:"id"`
	AccountID       uuid.UUID `json:"account_id"`
	TransactionType string    `json:"transaction_type"`
	Amount          int64     `json:"amount"`
	Description     *string   `json:"description,omitempty"`
	Recipient       *string   `json:"recipient,omitempty"`
	Status          string    `json:"status"`
	Reference       *string   `json:"reference,omitempty"`
	IdempotencyKey  *string   `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// TransactionListOptions filters transaction history queries.
type TransactionListOptions struct {
	Limit  int
	Offset int
	Type   string
}

// TransactionEdit carries the admin-editable fields of a transaction row.
type TransactionEdit struct {
	Amount      *int64     `json:"amount,omitempty"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// FormatCents renders minor units as a dollar string, e.g. 12345 -> "123.45".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// TotalBalance sums the balances of the given accounts.
func TotalBalance(accounts []Account) int64 {
	var total int64
	for _, account := range accounts {
		total += account.Balance
	}
	return total
}

// NewAccountNumber returns a random ten-digit account number.
func NewAccountNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(10_000_000_000))
}
