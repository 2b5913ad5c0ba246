package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	overviewCryptoSample     = 50
	adminViewTransactions    = 50
	adminViewCryptoTxs       = 10
	defaultAdminLogLimit     = 100
	adminBalanceAddNote      = "Admin added funds"
	adminBalanceSubtractNote = "Admin deducted funds"
	adminBalanceSetNote      = "Admin balance correction"
)

var ErrAddressRequired = errors.New("wallet address is required")

// AdminOverview computes the landing statistics concurrently.
func (s *Service) AdminOverview(ctx context.Context) (*domain.AdminOverview, error) {
	var overview domain.AdminOverview
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.repo.CountProfiles(gctx)
		if err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		overview.TotalUsers = counts.Total
		overview.ActiveUsers = counts.Active
		overview.BlockedUsers = counts.Blocked
		return nil
	})
	g.Go(func() error {
		count, total, err := s.repo.AccountTotals(gctx)
		if err != nil {
			return fmt.Errorf("account totals: %w", err)
		}
		overview.TotalAccounts = count
		overview.TotalBalance = total
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.ListRecentCryptoTransactions(gctx, overviewCryptoSample)
		if err != nil {
			return fmt.Errorf("recent crypto transactions: %w", err)
		}
		total := decimal.Zero
		for _, tx := range recent {
			total = total.Add(tx.USDValue)
		}
		overview.TotalCryptoValue = total
		return nil
	})
	g.Go(func() error {
		pending, err := s.repo.CountTransfersByStatus(gctx, domain.TransferStatusPending)
		if err != nil {
			return fmt.Errorf("count pending transfers: %w", err)
		}
		overview.PendingTransfers = pending
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &overview, nil
}

// ListUsers returns every profile, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]domain.Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// GetUserView loads everything the admin user page shows for one customer.
func (s *Service) GetUserView(ctx context.Context, userID uuid.UUID) (*domain.AdminUserView, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &domain.AdminUserView{Profile: profile}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view.Accounts, err = s.repo.ListAccountsByUserID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		view.Transactions, err = s.repo.ListTransactionsByUserID(gctx, userID, domain.TransactionListOptions{Limit: adminViewTransactions})
		return err
	})
	g.Go(func() error {
		var err error
		view.Transfers, err = s.repo.ListTransfersByUserID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		view.Wallets, err = s.repo.ListWalletsByUserID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		view.CryptoTransactions, err = s.repo.ListCryptoTransactionsByUserID(gctx, userID, adminViewCryptoTxs)
		return err
	})
	g.Go(func() error {
		var err error
		view.BTCFee, err = s.repo.GetCryptoTransferFee(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load user view: %w", err)
	}
	return view, nil
}

// AdminUpdateProfile edits a customer's profile on their behalf.
func (s *Service) AdminUpdateProfile(ctx context.Context, adminID, userID uuid.UUID, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	req = normalizeProfileUpdate(req)
	if req.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionProfileUpdate, &userID, map[string]interface{}{"changes": req})
	profile, err := s.repo.UpdateProfile(ctx, userID, req, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return profile, nil
}

// SetUserStatus changes a customer's lifecycle status.
func (s *Service) SetUserStatus(ctx context.Context, adminID, userID uuid.UUID, status string) (*domain.Profile, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.IsValidProfileStatus(status) {
		return nil, ErrInvalidStatus
	}
	current, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	audit := domain.NewAdminLog(adminID, domain.AdminActionUserStatus, &userID, map[string]interface{}{
		"previous_status": current.Status,
		"new_status":      status,
	})
	profile, err := s.repo.UpdateProfileStatus(ctx, userID, status, &audit)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=admin_user_status admin=%s user=%s status=%s", adminID, userID, status)
	s.streamAudit(ctx, &audit)
	return profile, nil
}

// ActivateUser sets a customer's status to active.
func (s *Service) ActivateUser(ctx context.Context, adminID, userID uuid.UUID) (*domain.Profile, error) {
	return s.SetUserStatus(ctx, adminID, userID, domain.ProfileStatusActive)
}

// AdjustBalance adds to or subtracts from an account and logs the movement.
func (s *Service) AdjustBalance(ctx context.Context, adminID, accountID uuid.UUID, req domain.BalanceAdjustmentRequest) (*domain.BalanceChange, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var (
		delta       int64
		action      string
		description string
	)
	switch strings.ToLower(strings.TrimSpace(req.Operation)) {
	case domain.BalanceOperationAdd:
		delta, action, description = req.Amount, domain.AdminActionBalanceAdd, adminBalanceAddNote
	case domain.BalanceOperationSubtract:
		delta, action, description = -req.Amount, domain.AdminActionBalanceSubtract, adminBalanceSubtractNote
	default:
		return nil, ErrInvalidBalanceOperation
	}

	audit := domain.NewAdminLog(adminID, action, nil, map[string]interface{}{"amount": req.Amount})
	change, err := s.repo.AdjustAccountBalance(ctx, accountID, delta, description, &audit)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=admin_balance action=%s admin=%s account=%s previous=%d new=%d", action, adminID, accountID, change.PreviousBalance, change.NewBalance)
	s.streamAudit(ctx, &audit)
	return change, nil
}

// SetBalance overwrites an account balance. The difference is written as a reconciling ledger row.
func (s *Service) SetBalance(ctx context.Context, adminID, accountID uuid.UUID, balance int64) (*domain.BalanceChange, error) {
	if balance < 0 {
		return nil, store.ErrNegativeBalance
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionBalanceSet, nil, nil)
	change, err := s.repo.SetAccountBalance(ctx, accountID, balance, adminBalanceSetNote, &audit)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=admin_balance action=%s admin=%s account=%s previous=%d new=%d", domain.AdminActionBalanceSet, adminID, accountID, change.PreviousBalance, change.NewBalance)
	s.streamAudit(ctx, &audit)
	return change, nil
}

// SetAccountStatus blocks or reactivates an account.
func (s *Service) SetAccountStatus(ctx context.Context, adminID, accountID uuid.UUID, status string) (*domain.Account, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != domain.AccountStatusActive && status != domain.AccountStatusBlocked {
		return nil, ErrInvalidStatus
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionAccountStatus, nil, map[string]interface{}{
		"account_id": accountID,
		"status":     status,
	})
	account, err := s.repo.UpdateAccountStatus(ctx, accountID, status, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return account, nil
}

// EditTransaction rewrites a ledger row's amount, description or date. Previous values are logged.
func (s *Service) EditTransaction(ctx context.Context, adminID, transactionID uuid.UUID, edit domain.TransactionEdit) (*domain.Transaction, error) {
	if edit.Amount == nil && edit.Description == nil && edit.CreatedAt == nil {
		return nil, ErrEmptyUpdate
	}
	if edit.Amount != nil && *edit.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	previous, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionTransactionEdit, nil, map[string]interface{}{
		"transaction_id": transactionID,
		"previous": map[string]interface{}{
			"amount":      previous.Amount,
			"description": previous.Description,
			"created_at":  previous.CreatedAt,
		},
		"changes": edit,
	})
	updated, err := s.repo.EditTransaction(ctx, transactionID, edit, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return updated, nil
}

// ListTransfersForReview lists transfers with the given status; an empty status lists all.
func (s *Service) ListTransfersForReview(ctx context.Context, status string) ([]domain.Transfer, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.TransferStatusPending, domain.TransferStatusCompleted, domain.TransferStatusRejected:
	default:
		return nil, ErrInvalidStatus
	}
	return s.repo.ListTransfersByStatus(ctx, status)
}

// ApproveTransfer completes a pending transfer.
func (s *Service) ApproveTransfer(ctx context.Context, adminID, transferID uuid.UUID) (*domain.Transfer, error) {
	audit := domain.NewAdminLog(adminID, domain.AdminActionTransferApprove, nil, map[string]interface{}{"transfer_id": transferID})
	transfer, err := s.repo.ApproveTransfer(ctx, transferID, adminID, &audit)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=transfer_review decision=approve admin=%s transfer=%s reference=%s", adminID, transferID, transfer.ReferenceNumber)
	s.metrics.ObserveTransferReview("approve")
	s.streamAudit(ctx, &audit)
	return transfer, nil
}

// RejectTransfer rejects a pending transfer and refunds the debited account.
func (s *Service) RejectTransfer(ctx context.Context, adminID, transferID uuid.UUID) (*domain.Transfer, error) {
	audit := domain.NewAdminLog(adminID, domain.AdminActionTransferReject, nil, map[string]interface{}{"transfer_id": transferID})
	transfer, err := s.repo.RejectTransfer(ctx, transferID, adminID, &audit)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=transfer_review decision=reject admin=%s transfer=%s reference=%s refunded=%d", adminID, transferID, transfer.ReferenceNumber, transfer.Amount)
	s.metrics.ObserveTransferReview("reject")
	s.streamAudit(ctx, &audit)
	return transfer, nil
}

// ListAllWallets returns every wallet for the address management page.
func (s *Service) ListAllWallets(ctx context.Context) ([]domain.CryptoWallet, error) {
	return s.repo.ListWallets(ctx)
}

// UpdateWalletAddress replaces a wallet's deposit address.
func (s *Service) UpdateWalletAddress(ctx context.Context, adminID, walletID uuid.UUID, address string) (*domain.CryptoWallet, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionWalletAddressUpdate, nil, map[string]interface{}{
		"wallet_id":   walletID,
		"new_address": address,
	})
	wallet, err := s.repo.UpdateWallet(ctx, walletID, domain.WalletUpdateRequest{WalletAddress: &address}, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return wallet, nil
}

// UpdateWallet edits a wallet's address and balance from the user view.
func (s *Service) UpdateWallet(ctx context.Context, adminID, walletID uuid.UUID, req domain.WalletUpdateRequest) (*domain.CryptoWallet, error) {
	req.WalletAddress = trimmedOrNil(req.WalletAddress)
	if req.WalletAddress == nil && req.Balance == nil {
		return nil, ErrEmptyUpdate
	}
	if req.Balance != nil && req.Balance.IsNegative() {
		return nil, store.ErrNegativeBalance
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionWalletUpdate, nil, map[string]interface{}{
		"wallet_id": walletID,
		"changes":   req,
	})
	wallet, err := s.repo.UpdateWallet(ctx, walletID, req, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return wallet, nil
}

// AddCrypto credits a customer's wallet and records a completed deposit valued at the cached price.
func (s *Service) AddCrypto(ctx context.Context, adminID, userID uuid.UUID, req domain.CryptoDepositRequest) (*domain.CryptoTransaction, error) {
	coin, ok := domain.FindCoin(req.CoinSymbol)
	if !ok {
		return nil, ErrUnsupportedCoin
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	usdValue := decimal.Zero
	price, err := s.prices.Quote(ctx, coin.Symbol)
	switch {
	case err == nil:
		usdValue = req.Amount.Mul(price.USD).Round(2)
	case errors.Is(err, ErrPriceUnavailable):
		log.Printf("level=warn component=app flow=admin_crypto_deposit outcome=unpriced coin=%s err=%v", coin.Symbol, err)
	default:
		return nil, err
	}

	now := s.now()
	entry := domain.CryptoTransaction{
		UserID:          userID,
		CoinSymbol:      coin.Symbol,
		Amount:          req.Amount,
		USDValue:        usdValue,
		Fee:             decimal.Zero,
		TransactionType: domain.CryptoTxDeposit,
		Status:          domain.CryptoTxCompleted,
		ReferenceNumber: domain.NewCryptoReference("ADMIN", now),
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionCryptoDeposit, &userID, map[string]interface{}{
		"coin_symbol": coin.Symbol,
		"amount":      req.Amount,
		"usd_value":   usdValue,
	})
	_, stored, err := s.repo.CreditCryptoDeposit(ctx, entry, domain.NewWalletAddress(coin.Symbol, now), &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return stored, nil
}

// ListCryptoFees lists every customer with their effective BTC fee.
func (s *Service) ListCryptoFees(ctx context.Context) ([]domain.CryptoTransferFee, error) {
	return s.repo.ListCryptoTransferFees(ctx)
}

// UpdateCryptoFee sets a customer's BTC network fee.
func (s *Service) UpdateCryptoFee(ctx context.Context, adminID, userID uuid.UUID, fee decimal.Decimal) (*domain.CryptoTransferFee, error) {
	if fee.IsNegative() {
		return nil, ErrNegativeFee
	}
	audit := domain.NewAdminLog(adminID, domain.AdminActionCryptoFeeUpdate, &userID, map[string]interface{}{"btc_fee": fee})
	stored, err := s.repo.UpsertCryptoTransferFee(ctx, userID, fee, &audit)
	if err != nil {
		return nil, err
	}
	s.streamAudit(ctx, &audit)
	return stored, nil
}

// ListAdminLogs returns the latest audit entries, newest first.
func (s *Service) ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error) {
	return s.repo.ListAdminLogs(ctx, clampLimit(limit, defaultAdminLogLimit, maxHistoryLimit))
}
