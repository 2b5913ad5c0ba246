/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the banking services need. Business logic depends on this interface
 * only, which keeps the PostgreSQL implementation swappable and the services testable
 * with hand-written stubs.
 *
 * @notes
 * - Mutations that originate from an admin accept an optional `*domain.AdminLog`;
 *   when present it is written in the same database transaction as the mutation.
 */

package store

import (
	"context"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Profiles and roles
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	CreateProfileWithAccount(ctx context.Context, profile domain.Profile, account domain.Account) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest, audit *domain.AdminLog) (*domain.Profile, error)
	UpdateProfileStatus(ctx context.Context, userID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Profile, error)
	FindProfileByUsername(ctx context.Context, username string) (*domain.Profile, error)
	FindProfileByAccountNumber(ctx context.Context, accountNumber string) (*domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	CountProfiles(ctx context.Context) (domain.ProfileCounts, error)
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)

	// Transfer PIN credentials
	GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error)
	CreateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error
	UpdateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error
	RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error)
	ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error

	// Accounts and ledger
	ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	AccountTotals(ctx context.Context) (count int, totalBalance int64, err error)
	UpdateAccountStatus(ctx context.Context, accountID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Account, error)
	AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta int64, description string, audit *domain.AdminLog) (*domain.BalanceChange, error)
	SetAccountBalance(ctx context.Context, accountID uuid.UUID, balance int64, description string, audit *domain.AdminLog) (*domain.BalanceChange, error)
	ListTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	GetTransactionForUser(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) (*domain.Transaction, error)
	EditTransaction(ctx context.Context, transactionID uuid.UUID, edit domain.TransactionEdit, audit *domain.AdminLog) (*domain.Transaction, error)
	ExecuteInternalTransfer(ctx context.Context, params domain.InternalTransferParams) (*domain.InternalTransferResult, error)

	// Wire-style transfers
	CreateTransferWithDebit(ctx context.Context, transfer domain.Transfer, debitDescription string) (*domain.Transfer, bool, error)
	ListTransfersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error)
	ListTransfersByStatus(ctx context.Context, status string) ([]domain.Transfer, error)
	CountTransfersByStatus(ctx context.Context, status string) (int, error)
	CountPendingTransfersOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	ApproveTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error)
	RejectTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error)

	// Bills and portfolios
	ListBillsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error)
	PayBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) (*domain.Bill, *domain.Transaction, error)
	ListPortfoliosByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Portfolio, error)

	// Crypto wallets
	ListWalletsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.CryptoWallet, error)
	ListWallets(ctx context.Context) ([]domain.CryptoWallet, error)
	FindOrCreateWallet(ctx context.Context, userID uuid.UUID, coinSymbol string, address string) (*domain.CryptoWallet, error)
	UpdateWallet(ctx context.Context, walletID uuid.UUID, req domain.WalletUpdateRequest, audit *domain.AdminLog) (*domain.CryptoWallet, error)
	CreditCryptoDeposit(ctx context.Context, tx domain.CryptoTransaction, newWalletAddress string, audit *domain.AdminLog) (*domain.CryptoWallet, *domain.CryptoTransaction, error)
	DebitCryptoWithdrawal(ctx context.Context, tx domain.CryptoTransaction) (*domain.CryptoWallet, *domain.CryptoTransaction, error)
	ListCryptoTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CryptoTransaction, error)
	ListRecentCryptoTransactions(ctx context.Context, limit int) ([]domain.CryptoTransaction, error)
	GetCryptoTransferFee(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListCryptoTransferFees(ctx context.Context) ([]domain.CryptoTransferFee, error)
	UpsertCryptoTransferFee(ctx context.Context, userID uuid.UUID, fee decimal.Decimal, audit *domain.AdminLog) (*domain.CryptoTransferFee, error)

	// Audit
	ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error)
}
