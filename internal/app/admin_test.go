package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestAdjustBalance(t *testing.T) {
	tests := []struct {
		name        string
		req         domain.BalanceAdjustmentRequest
		wantErr     error
		wantDelta   int64
		wantNote    string
		wantAction  string
		wantBalance int64
	}{
		{name: "add", req: domain.BalanceAdjustmentRequest{Operation: "add", Amount: 500}, wantDelta: 500, wantNote: "Admin added funds", wantAction: domain.AdminActionBalanceAdd, wantBalance: 1500},
		{name: "subtract", req: domain.BalanceAdjustmentRequest{Operation: " Subtract ", Amount: 300}, wantDelta: -300, wantNote: "Admin deducted funds", wantAction: domain.AdminActionBalanceSubtract, wantBalance: 700},
		{name: "unknown operation", req: domain.BalanceAdjustmentRequest{Operation: "multiply", Amount: 300}, wantErr: ErrInvalidBalanceOperation},
		{name: "zero amount", req: domain.BalanceAdjustmentRequest{Operation: "add"}, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &serviceRepoStub{}
			svc := NewService(repo, nil, testConfig())
			adminID := uuid.New()

			change, err := svc.AdjustBalance(context.Background(), adminID, uuid.New(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr != nil {
				if repo.adjustAudit != nil {
					t.Fatal("expected no repository call")
				}
				return
			}
			if repo.adjustDelta != tt.wantDelta || repo.adjustDescription != tt.wantNote {
				t.Fatalf("unexpected adjustment delta=%d note=%q", repo.adjustDelta, repo.adjustDescription)
			}
			if repo.adjustAudit.ActionType != tt.wantAction || repo.adjustAudit.AdminID != adminID {
				t.Fatalf("unexpected audit %+v", repo.adjustAudit)
			}
			if change.NewBalance != tt.wantBalance {
				t.Fatalf("expected new balance %d, got %d", tt.wantBalance, change.NewBalance)
			}
		})
	}
}

func TestAdjustBalancePropagatesNegativeBalance(t *testing.T) {
	repo := &serviceRepoStub{adjustErr: store.ErrNegativeBalance}
	svc := NewService(repo, nil, testConfig())

	_, err := svc.AdjustBalance(context.Background(), uuid.New(), uuid.New(), domain.BalanceAdjustmentRequest{Operation: "subtract", Amount: 5000})
	if !errors.Is(err, store.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
}

func TestSetBalanceRejectsNegative(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, nil, testConfig())
	if _, err := svc.SetBalance(context.Background(), uuid.New(), uuid.New(), -1); !errors.Is(err, store.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
}

func TestAdminOverview(t *testing.T) {
	repo := &serviceRepoStub{
		profileCounts: domain.ProfileCounts{Total: 10, Active: 7, Blocked: 2},
		accountCount:  12,
		accountTotal:  987654,
		recentCrypto: []domain.CryptoTransaction{
			{USDValue: decimal.RequireFromString("100.25")},
			{USDValue: decimal.RequireFromString("49.75")},
		},
		pendingCount: 3,
	}
	svc := NewService(repo, nil, testConfig())

	overview, err := svc.AdminOverview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overview.TotalUsers != 10 || overview.ActiveUsers != 7 || overview.BlockedUsers != 2 {
		t.Fatalf("unexpected user counts %+v", overview)
	}
	if overview.TotalAccounts != 12 || overview.TotalBalance != 987654 || overview.PendingTransfers != 3 {
		t.Fatalf("unexpected totals %+v", overview)
	}
	if !overview.TotalCryptoValue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected crypto value 150, got %s", overview.TotalCryptoValue)
	}
}

func TestSetUserStatus(t *testing.T) {
	userID := uuid.New()
	repo := &serviceRepoStub{byID: map[uuid.UUID]*domain.Profile{
		userID: {ID: userID, Status: domain.ProfileStatusActive},
	}}
	svc := NewService(repo, nil, testConfig())

	if _, err := svc.SetUserStatus(context.Background(), uuid.New(), userID, "suspended"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	profile, err := svc.SetUserStatus(context.Background(), uuid.New(), userID, " BLOCKED ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Status != domain.ProfileStatusBlocked || repo.statusUpdated != domain.ProfileStatusBlocked {
		t.Fatalf("expected blocked status, got %q", profile.Status)
	}

	profile, err = svc.ActivateUser(context.Background(), uuid.New(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Status != domain.ProfileStatusActive {
		t.Fatalf("expected active status, got %q", profile.Status)
	}
}

func TestRejectTransferRecordsAudit(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := NewService(repo, nil, testConfig())
	adminID := uuid.New()
	transferID := uuid.New()

	transfer, err := svc.RejectTransfer(context.Background(), adminID, transferID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transfer.Status != domain.TransferStatusRejected {
		t.Fatalf("expected rejected transfer, got %q", transfer.Status)
	}
	if repo.transferAudit == nil || repo.transferAudit.ActionType != domain.AdminActionTransferReject || repo.transferAudit.AdminID != adminID {
		t.Fatalf("unexpected audit %+v", repo.transferAudit)
	}

	var details map[string]string
	if err := json.Unmarshal(repo.transferAudit.Details, &details); err != nil {
		t.Fatalf("failed to decode details: %v", err)
	}
	if details["transfer_id"] != transferID.String() {
		t.Fatalf("expected transfer id in details, got %v", details)
	}
}

func TestEditTransaction(t *testing.T) {
	description := "Groceries"
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &serviceRepoStub{transactionEdit: &domain.Transaction{
		ID:          uuid.New(),
		Amount:      500,
		Description: &description,
		CreatedAt:   created,
	}}
	svc := NewService(repo, nil, testConfig())
	ctx := context.Background()

	if _, err := svc.EditTransaction(ctx, uuid.New(), repo.transactionEdit.ID, domain.TransactionEdit{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
	negative := int64(-10)
	if _, err := svc.EditTransaction(ctx, uuid.New(), repo.transactionEdit.ID, domain.TransactionEdit{Amount: &negative}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	amount := int64(750)
	updated, err := svc.EditTransaction(ctx, uuid.New(), repo.transactionEdit.ID, domain.TransactionEdit{Amount: &amount})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Amount != 750 {
		t.Fatalf("expected amount 750, got %d", updated.Amount)
	}

	var details struct {
		Previous struct {
			Amount      int64  `json:"amount"`
			Description string `json:"description"`
		} `json:"previous"`
	}
	if err := json.Unmarshal(repo.transferAudit.Details, &details); err != nil {
		t.Fatalf("failed to decode details: %v", err)
	}
	if details.Previous.Amount != 500 || details.Previous.Description != "Groceries" {
		t.Fatalf("expected previous values in audit, got %+v", details.Previous)
	}
}

func TestEditTransactionNotFound(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, nil, testConfig())
	amount := int64(100)
	_, err := svc.EditTransaction(context.Background(), uuid.New(), uuid.New(), domain.TransactionEdit{Amount: &amount})
	if !errors.Is(err, store.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestUpdateCryptoFeeRejectsNegative(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, nil, testConfig())
	_, err := svc.UpdateCryptoFee(context.Background(), uuid.New(), uuid.New(), decimal.RequireFromString("-0.001"))
	if !errors.Is(err, ErrNegativeFee) {
		t.Fatalf("expected ErrNegativeFee, got %v", err)
	}
}

func TestListTransfersForReviewRejectsUnknownStatus(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, nil, testConfig())
	if _, err := svc.ListTransfersForReview(context.Background(), "archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateWalletAddressRequiresAddress(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, nil, testConfig())
	if _, err := svc.UpdateWalletAddress(context.Background(), uuid.New(), uuid.New(), "  "); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}
