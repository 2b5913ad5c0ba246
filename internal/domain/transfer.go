/**
 * @description
 * Domain models for wire-style transfer requests, internal account-to-account
 * transfers, and the transfer PIN gate that precedes both.
 *
 * @notes
 * - Amounts are `int64` cents.
 * - A transfer is debited at submission and held as pending until an admin
 *   approves it or rejects it with a compensating credit.
 */

package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transfer states and types.
const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusRejected  = "rejected"

	TransferTypeLocal         = "local"
	TransferTypeInternational = "international"
)

// PIN workflow states reported to clients.
const (
	PINStateSetup  = "pin-setup"
	PINStateVerify = "pin-verify"
	PINStateLocked = "locked"
)

var transferPINPattern = regexp.MustCompile(`^\d{4}$`)

// Transfer is an external/local wire-transfer request requiring admin approval.
type Transfer struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	AccountID        *uuid.UUID `json:"account_id,omitempty"`
	RecipientName    string     `json:"recipient_name"`
	RecipientAccount string     `json:"recipient_account"`
	RecipientBank    *string    `json:"recipient_bank,omitempty"`
	RecipientCountry *string    `json:"recipient_country,omitempty"`
	Amount           int64      `json:"amount"`
	TransferType     string     `json:"transfer_type"`
	ReferenceNumber  string     `json:"reference_number"`
	Status           string     `json:"status"`
	IdempotencyKey   *string    `json:"-"`
	ReviewedBy       *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`

	// Populated on admin listings.
	SenderName  *string `json:"sender_name,omitempty"`
	SenderEmail *string `json:"sender_email,omitempty"`
}

// TransferRequest is the DTO for submitting a wire-style transfer.
type TransferRequest struct {
	RecipientName    string `json:"recipient_name"`
	RecipientAccount string `json:"recipient_account"`
	RecipientBank    string `json:"recipient_bank"`
	RecipientCountry string `json:"recipient_country"`
	Amount           int64  `json:"amount"`
	TransferType     string `json:"transfer_type"`
	TransactionPIN   string `json:"transaction_pin"`
}

// Normalize trims the free-text fields and defaults the transfer type.
func (r *TransferRequest) Normalize() {
	r.RecipientName = strings.TrimSpace(r.RecipientName)
	r.RecipientAccount = strings.TrimSpace(r.RecipientAccount)
	r.RecipientBank = strings.TrimSpace(r.RecipientBank)
	r.RecipientCountry = strings.TrimSpace(r.RecipientCountry)
	r.TransferType = strings.ToLower(strings.TrimSpace(r.TransferType))
	if r.TransferType == "" {
		r.TransferType = TransferTypeLocal
	}
}

// TransferReceipt is returned once a transfer request has been committed.
type TransferReceipt struct {
	TransferID       uuid.UUID `json:"transfer_id"`
	RecipientName    string    `json:"recipient_name"`
	RecipientAccount string    `json:"recipient_account"`
	RecipientBank    string    `json:"recipient_bank,omitempty"`
	RecipientCountry string    `json:"recipient_country,omitempty"`
	Amount           int64     `json:"amount"`
	TransferType     string    `json:"transfer_type"`
	ReferenceNumber  string    `json:"reference_number"`
	Status           string    `json:"status"`
	Date             time.Time `json:"date"`
}

// NewTransferReceipt builds the receipt view of a stored transfer.
func NewTransferReceipt(t *Transfer) TransferReceipt {
	receipt := TransferReceipt{
		TransferID:       t.ID,
		RecipientName:    t.RecipientName,
		RecipientAccount: t.RecipientAccount,
		Amount:           t.Amount,
		TransferType:     t.TransferType,
		ReferenceNumber:  t.ReferenceNumber,
		Status:           t.Status,
		Date:             t.CreatedAt,
	}
	if t.RecipientBank != nil {
		receipt.RecipientBank = *t.RecipientBank
	}
	if t.RecipientCountry != nil {
		receipt.RecipientCountry = *t.RecipientCountry
	}
	return receipt
}

// InternalTransferRequest is the DTO for moving money to another customer.
type InternalTransferRequest struct {
	RecipientIdentifier string `json:"recipient_identifier"` // username or account number
	Amount              int64  `json:"amount"`
	TransactionPIN      string `json:"transaction_pin"`
}

// InternalTransferParams is what the store needs to execute the debit/credit pair.
type InternalTransferParams struct {
	SenderID          uuid.UUID
	RecipientID       uuid.UUID
	Amount            int64
	Reference         string
	DebitDescription  string
	CreditDescription string
	SenderName        string
	RecipientName     string
	IdempotencyKey    *string
}

// InternalTransferResult reports both sides of a committed internal transfer.
type InternalTransferResult struct {
	Reference        string    `json:"transaction_id"`
	RecipientName    string    `json:"recipient_name"`
	SenderAccount    Account   `json:"-"`
	RecipientAccount Account   `json:"-"`
	Amount           int64     `json:"amount"`
	CreatedAt        time.Time `json:"created_at"`
	Replayed         bool      `json:"-"`
}

// InternalTransferReceipt is returned to the sender.
type InternalTransferReceipt struct {
	RecipientName string    `json:"recipient_name"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	NewBalance    int64     `json:"new_balance"`
	Currency      string    `json:"currency"`
}

// PINStatus describes where a user is in the PIN workflow.
type PINStatus struct {
	State          string     `json:"state"`
	HasPIN         bool       `json:"has_pin"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// SetupPINRequest creates a PIN.
type SetupPINRequest struct {
	PIN        string `json:"pin"`
	ConfirmPIN string `json:"confirm_pin"`
}

// ChangePINRequest replaces an existing PIN.
type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
	ConfirmPIN string `json:"confirm_pin"`
}

// IsValidTransferPIN reports whether pin is exactly four digits.
func IsValidTransferPIN(pin string) bool {
	return transferPINPattern.MatchString(pin)
}

// NewTransferReference generates a wire reference of the form HER<unix-millis><0-999>.
func NewTransferReference(now time.Time) string {
	return fmt.Sprintf("HER%d%d", now.UnixMilli(), rand.Intn(1000))
}

// NewInternalTransactionID generates an internal transfer id of the form TXN<unix-millis><0-999>.
func NewInternalTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN%d%d", now.UnixMilli(), rand.Intn(1000))
}
