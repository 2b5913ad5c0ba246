package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Admin action types recorded in admin_logs.
const (
	AdminActionBalanceAdd          = "balance_add"
	AdminActionBalanceSubtract     = "balance_subtract"
	AdminActionBalanceSet          = "balance_set"
	AdminActionAccountStatus       = "account_status_update"
	AdminActionUserStatus          = "user_status_update"
	AdminActionProfileUpdate       = "profile_update"
	AdminActionTransactionEdit     = "transaction_edit"
	AdminActionTransferApprove     = "transfer_approve"
	AdminActionTransferReject      = "transfer_reject"
	AdminActionWalletAddressUpdate = "wallet_address_update"
	AdminActionWalletUpdate        = "wallet_update"
	AdminActionCryptoDeposit       = "crypto_deposit"
	AdminActionCryptoFeeUpdate     = "crypto_fee_update"
)

// Balance adjustment operations.
const (
	BalanceOperationAdd      = "add"
	BalanceOperationSubtract = "subtract"
)

// AdminLog is an audit record of an admin mutation.
type AdminLog struct {
	ID           uuid.UUID       `json:"id"`
	AdminID      uuid.UUID       `json:"admin_id"`
	ActionType   string          `json:"action_type"`
	TargetUserID *uuid.UUID      `json:"target_user_id,omitempty"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAdminLog builds an audit entry, marshalling details to JSON.
func NewAdminLog(adminID uuid.UUID, actionType string, target *uuid.UUID, details map[string]interface{}) AdminLog {
	raw, err := json.Marshal(details)
	if err != nil || details == nil {
		raw = []byte("{}")
	}
	return AdminLog{
		ID:           uuid.New(),
		AdminID:      adminID,
		ActionType:   actionType,
		TargetUserID: target,
		Details:      raw,
		CreatedAt:    time.Now().UTC(),
	}
}

// BalanceAdjustmentRequest is the EditBalances DTO.
type BalanceAdjustmentRequest struct {
	Operation string `json:"operation"`
	Amount    int64  `json:"amount"`
}

// SetBalanceRequest sets an account balance directly.
type SetBalanceRequest struct {
	Balance int64 `json:"balance"`
}

// BalanceChange reports the effect of an admin balance mutation.
type BalanceChange struct {
	Account         Account      `json:"account"`
	PreviousBalance int64        `json:"previous_balance"`
	NewBalance      int64        `json:"new_balance"`
	Transaction     *Transaction `json:"transaction,omitempty"`
}

// StatusRequest carries a new status value.
type StatusRequest struct {
	Status string `json:"status"`
}

// CryptoFeeRequest updates a user's BTC fee.
type CryptoFeeRequest struct {
	BTCFee decimal.Decimal `json:"btc_fee"`
}

// AdminOverview is the admin landing statistics.
type AdminOverview struct {
	TotalUsers       int             `json:"total_users"`
	ActiveUsers      int             `json:"active_users"`
	BlockedUsers     int             `json:"blocked_users"`
	TotalAccounts    int             `json:"total_accounts"`
	TotalBalance     int64           `json:"total_balance"`
	TotalCryptoValue decimal.Decimal `json:"total_crypto_value"`
	PendingTransfers int             `json:"pending_transfers"`
}

// ProfileCounts holds profile totals by status.
type ProfileCounts struct {
	Total   int
	Active  int
	Blocked int
}

// AdminUserView is everything the admin user page shows for one customer.
type AdminUserView struct {
	Profile            *Profile            `json:"profile"`
	Accounts           []Account           `json:"accounts"`
	Transactions       []Transaction       `json:"transactions"`
	Transfers          []Transfer          `json:"transfers"`
	Wallets            []CryptoWallet      `json:"wallets"`
	CryptoTransactions []CryptoTransaction `json:"crypto_transactions"`
	BTCFee             decimal.Decimal     `json:"btc_fee"`
}
