package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
)

const (
	dashboardRecentTransactions = 5
	defaultHistoryLimit         = 50
	maxHistoryLimit             = 200
)

// BootstrapProfile creates the profile for a freshly signed-up user together with a primary
// checking account. Repeated calls return the stored profile.
func (s *Service) BootstrapProfile(ctx context.Context, userID uuid.UUID, req domain.CreateProfileRequest) (*domain.Profile, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, ErrProfileRequired
	}

	profile := domain.Profile{
		ID:       userID,
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Username: trimmedOrNil(req.Username),
		Phone:    trimmedOrNil(req.Phone),
		Country:  trimmedOrNil(req.Country),
		Status:   domain.ProfileStatusActive,
	}
	account := domain.Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: domain.NewAccountNumber(),
		AccountType:   domain.AccountTypeChecking,
		Currency:      domain.DefaultCurrency,
		Status:        domain.AccountStatusActive,
	}

	stored, err := s.repo.CreateProfileWithAccount(ctx, profile, account)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap profile: %w", err)
	}
	log.Printf("level=info component=app flow=bootstrap outcome=ok user=%s", userID)
	return stored, nil
}

// GetProfile returns the caller's profile.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile applies a self-service profile edit.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	req = normalizeProfileUpdate(req)
	if req.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	return s.repo.UpdateProfile(ctx, userID, req, nil)
}

// GetDashboard assembles the landing view of a customer.
func (s *Service) GetDashboard(ctx context.Context, userID uuid.UUID) (*domain.Dashboard, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListAccountsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	recent, err := s.repo.ListTransactionsByUserID(ctx, userID, domain.TransactionListOptions{Limit: dashboardRecentTransactions})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	portfolios, err := s.repo.ListPortfoliosByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	bills, err := s.repo.ListBillsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	pending := make([]domain.Bill, 0, len(bills))
	for _, bill := range bills {
		if bill.Status == domain.BillStatusPending {
			pending = append(pending, bill)
		}
	}

	return &domain.Dashboard{
		Profile:            profile,
		Accounts:           accounts,
		TotalBalance:       domain.TotalBalance(accounts),
		RecentTransactions: recent,
		Portfolios:         portfolios,
		PendingBills:       pending,
	}, nil
}

// ListAccounts returns the caller's accounts.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.repo.ListAccountsByUserID(ctx, userID)
}

// ListTransactions returns the caller's ledger rows, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	opts.Limit = clampLimit(opts.Limit, defaultHistoryLimit, maxHistoryLimit)
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	switch opts.Type {
	case "", domain.TransactionTypeCredit, domain.TransactionTypeDebit:
	default:
		opts.Type = ""
	}
	return s.repo.ListTransactionsByUserID(ctx, userID, opts)
}

// TransactionReceipt renders the downloadable receipt of one of the caller's transactions.
func (s *Service) TransactionReceipt(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) (filename string, body string, err error) {
	tx, err := s.repo.GetTransactionForUser(ctx, userID, transactionID)
	if err != nil {
		return "", "", err
	}
	return domain.ReceiptFilename(*tx), domain.RenderReceipt(*tx), nil
}

// ListBills returns all of the caller's bills.
func (s *Service) ListBills(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error) {
	return s.repo.ListBillsByUserID(ctx, userID)
}

// PayBill settles a pending bill from the caller's funding account.
func (s *Service) PayBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) (*domain.Bill, error) {
	bill, tx, err := s.repo.PayBill(ctx, userID, billID)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app flow=bill_pay outcome=paid user=%s bill=%s tx=%s amount=%d", userID, bill.ID, tx.ID, bill.Amount)
	return bill, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normalizeProfileUpdate trims values and drops blanks so they leave stored fields unchanged.
func normalizeProfileUpdate(req domain.UpdateProfileRequest) domain.UpdateProfileRequest {
	return domain.UpdateProfileRequest{
		FullName:          trimmedOrNil(req.FullName),
		FirstName:         trimmedOrNil(req.FirstName),
		LastName:          trimmedOrNil(req.LastName),
		Email:             trimmedOrNil(req.Email),
		Username:          trimmedOrNil(req.Username),
		Phone:             trimmedOrNil(req.Phone),
		Country:           trimmedOrNil(req.Country),
		Address:           trimmedOrNil(req.Address),
		DateOfBirth:       trimmedOrNil(req.DateOfBirth),
		ProfilePictureURL: trimmedOrNil(req.ProfilePictureURL),
	}
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
