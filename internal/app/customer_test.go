package app

import (
	"context"
	"errors"
	"testing"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
)

type customerRepoStub struct {
	store.Repository

	createdProfile domain.Profile
	createdAccount domain.Account
	listOpts       domain.TransactionListOptions
	updateReq      *domain.UpdateProfileRequest
}

func (s *customerRepoStub) CreateProfileWithAccount(ctx context.Context, profile domain.Profile, account domain.Account) (*domain.Profile, error) {
	s.createdProfile = profile
	s.createdAccount = account
	return &profile, nil
}

func (s *customerRepoStub) ListTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	s.listOpts = opts
	return nil, nil
}

func (s *customerRepoStub) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest, audit *domain.AdminLog) (*domain.Profile, error) {
	s.updateReq = &req
	return &domain.Profile{ID: userID}, nil
}

func TestBootstrapProfileCreatesCheckingAccount(t *testing.T) {
	repo := &customerRepoStub{}
	svc := NewService(repo, nil, testConfig())
	userID := uuid.New()

	if _, err := svc.BootstrapProfile(context.Background(), userID, domain.CreateProfileRequest{FullName: "Ada"}); !errors.Is(err, ErrProfileRequired) {
		t.Fatalf("expected ErrProfileRequired, got %v", err)
	}

	username := "  ada  "
	profile, err := svc.BootstrapProfile(context.Background(), userID, domain.CreateProfileRequest{
		Email:    " ada@example.com ",
		FullName: "Ada Lovelace",
		Username: &username,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.ID != userID || profile.Email != "ada@example.com" || *profile.Username != "ada" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	account := repo.createdAccount
	if account.UserID != userID || account.AccountType != domain.AccountTypeChecking || account.Currency != "USD" || account.Balance != 0 {
		t.Fatalf("unexpected account %+v", account)
	}
	if len(account.AccountNumber) != 10 {
		t.Fatalf("expected ten digit account number, got %q", account.AccountNumber)
	}
}

func TestUpdateProfileDropsBlankFields(t *testing.T) {
	repo := &customerRepoStub{}
	svc := NewService(repo, nil, testConfig())

	if _, err := svc.UpdateProfile(context.Background(), uuid.New(), domain.UpdateProfileRequest{Phone: strPtr("   ")}); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}

	if _, err := svc.UpdateProfile(context.Background(), uuid.New(), domain.UpdateProfileRequest{Phone: strPtr(" 555 "), Country: strPtr("")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.updateReq.Phone == nil || *repo.updateReq.Phone != "555" || repo.updateReq.Country != nil {
		t.Fatalf("unexpected normalized update %+v", repo.updateReq)
	}
}

func TestListTransactionsClampsOptions(t *testing.T) {
	tests := []struct {
		name string
		opts domain.TransactionListOptions
		want domain.TransactionListOptions
	}{
		{name: "defaults", opts: domain.TransactionListOptions{}, want: domain.TransactionListOptions{Limit: 50}},
		{name: "ceiling", opts: domain.TransactionListOptions{Limit: 1000, Offset: -5, Type: "credit"}, want: domain.TransactionListOptions{Limit: 200, Type: "credit"}},
		{name: "unknown type", opts: domain.TransactionListOptions{Limit: 10, Type: "refund"}, want: domain.TransactionListOptions{Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &customerRepoStub{}
			svc := NewService(repo, nil, testConfig())
			if _, err := svc.ListTransactions(context.Background(), uuid.New(), tt.opts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.listOpts != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, repo.listOpts)
			}
		})
	}
}
