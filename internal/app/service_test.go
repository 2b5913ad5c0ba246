package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// serviceRepoStub implements the repository calls the service tests exercise. Any other call
// panics through the embedded nil interface.
type serviceRepoStub struct {
	store.Repository

	credential       *domain.UserSecurityCredential
	credentialErr    error
	failedRecorded   int
	resetCalls       int
	resetErr         error
	createdPINHash   string
	updatedPINHash   string
	byID             map[uuid.UUID]*domain.Profile
	byUsername       map[string]*domain.Profile
	byAccountNumber  map[string]*domain.Profile
	accounts         []domain.Account
	internalParams   *domain.InternalTransferParams
	internalResult   *domain.InternalTransferResult
	internalErr      error
	createdTransfer  *domain.Transfer
	transferDebit    string
	transferReplayed bool
	transferErr      error

	adjustDelta       int64
	adjustDescription string
	adjustAudit       *domain.AdminLog
	adjustErr         error

	profileCounts   domain.ProfileCounts
	accountCount    int
	accountTotal    int64
	recentCrypto    []domain.CryptoTransaction
	pendingCount    int
	stalePending    int
	staleCutoff     time.Time
	btcFee          decimal.Decimal
	withdrawal      *domain.CryptoTransaction
	withdrawalErr   error
	deposit         *domain.CryptoTransaction
	depositAudit    *domain.AdminLog
	statusUpdated   string
	transferAudit   *domain.AdminLog
	transactionEdit *domain.Transaction
}

func (s *serviceRepoStub) GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	if s.credentialErr != nil {
		return nil, s.credentialErr
	}
	if s.credential == nil {
		return nil, store.ErrTransactionPINNotSet
	}
	copied := *s.credential
	return &copied, nil
}

func (s *serviceRepoStub) CreateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	if s.credential != nil {
		return store.ErrTransactionPINAlreadySet
	}
	s.createdPINHash = pinHash
	return nil
}

func (s *serviceRepoStub) UpdateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	s.updatedPINHash = pinHash
	return nil
}

func (s *serviceRepoStub) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error) {
	s.failedRecorded++
	s.credential.FailedAttempts++
	if s.credential.FailedAttempts >= maxAttempts {
		until := time.Now().Add(time.Duration(lockoutDurationSeconds) * time.Second)
		s.credential.LockedUntil = &until
	}
	copied := *s.credential
	return &copied, nil
}

func (s *serviceRepoStub) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	s.resetCalls++
	if s.resetErr != nil {
		return s.resetErr
	}
	s.credential.FailedAttempts = 0
	s.credential.LockedUntil = nil
	return nil
}

func (s *serviceRepoStub) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	if profile, ok := s.byID[userID]; ok {
		return profile, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *serviceRepoStub) FindProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	if profile, ok := s.byUsername[username]; ok {
		return profile, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *serviceRepoStub) FindProfileByAccountNumber(ctx context.Context, accountNumber string) (*domain.Profile, error) {
	if profile, ok := s.byAccountNumber[accountNumber]; ok {
		return profile, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *serviceRepoStub) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.accounts, nil
}

func (s *serviceRepoStub) ExecuteInternalTransfer(ctx context.Context, params domain.InternalTransferParams) (*domain.InternalTransferResult, error) {
	s.internalParams = &params
	if s.internalErr != nil {
		return nil, s.internalErr
	}
	return s.internalResult, nil
}

func (s *serviceRepoStub) CreateTransferWithDebit(ctx context.Context, transfer domain.Transfer, debitDescription string) (*domain.Transfer, bool, error) {
	s.createdTransfer = &transfer
	s.transferDebit = debitDescription
	if s.transferErr != nil {
		return nil, false, s.transferErr
	}
	stored := transfer
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	return &stored, s.transferReplayed, nil
}

func (s *serviceRepoStub) AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta int64, description string, audit *domain.AdminLog) (*domain.BalanceChange, error) {
	s.adjustDelta = delta
	s.adjustDescription = description
	s.adjustAudit = audit
	if s.adjustErr != nil {
		return nil, s.adjustErr
	}
	return &domain.BalanceChange{PreviousBalance: 1000, NewBalance: 1000 + delta}, nil
}

func (s *serviceRepoStub) CountProfiles(ctx context.Context) (domain.ProfileCounts, error) {
	return s.profileCounts, nil
}

func (s *serviceRepoStub) AccountTotals(ctx context.Context) (int, int64, error) {
	return s.accountCount, s.accountTotal, nil
}

func (s *serviceRepoStub) ListRecentCryptoTransactions(ctx context.Context, limit int) ([]domain.CryptoTransaction, error) {
	return s.recentCrypto, nil
}

func (s *serviceRepoStub) CountTransfersByStatus(ctx context.Context, status string) (int, error) {
	return s.pendingCount, nil
}

func (s *serviceRepoStub) CountPendingTransfersOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.staleCutoff = cutoff
	return s.stalePending, nil
}

func (s *serviceRepoStub) GetCryptoTransferFee(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.btcFee, nil
}

func (s *serviceRepoStub) DebitCryptoWithdrawal(ctx context.Context, entry domain.CryptoTransaction) (*domain.CryptoWallet, *domain.CryptoTransaction, error) {
	s.withdrawal = &entry
	if s.withdrawalErr != nil {
		return nil, nil, s.withdrawalErr
	}
	return &domain.CryptoWallet{UserID: entry.UserID, CoinSymbol: entry.CoinSymbol}, &entry, nil
}

func (s *serviceRepoStub) CreditCryptoDeposit(ctx context.Context, entry domain.CryptoTransaction, newWalletAddress string, audit *domain.AdminLog) (*domain.CryptoWallet, *domain.CryptoTransaction, error) {
	s.deposit = &entry
	s.depositAudit = audit
	return &domain.CryptoWallet{UserID: entry.UserID, CoinSymbol: entry.CoinSymbol, WalletAddress: newWalletAddress}, &entry, nil
}

func (s *serviceRepoStub) UpdateProfileStatus(ctx context.Context, userID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Profile, error) {
	s.statusUpdated = status
	profile := *s.byID[userID]
	profile.Status = status
	return &profile, nil
}

func (s *serviceRepoStub) RejectTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error) {
	s.transferAudit = audit
	return &domain.Transfer{ID: transferID, Status: domain.TransferStatusRejected, ReferenceNumber: "HER1"}, nil
}

func (s *serviceRepoStub) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.transactionEdit == nil {
		return nil, store.ErrTransactionNotFound
	}
	return s.transactionEdit, nil
}

func (s *serviceRepoStub) EditTransaction(ctx context.Context, transactionID uuid.UUID, edit domain.TransactionEdit, audit *domain.AdminLog) (*domain.Transaction, error) {
	s.transferAudit = audit
	updated := *s.transactionEdit
	if edit.Amount != nil {
		updated.Amount = *edit.Amount
	}
	return &updated, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func testConfig() config.Config {
	return config.Config{
		PINMaxAttempts:              3,
		PINLockoutSeconds:           900,
		PINVerifyRateLimitPerMinute: 10,
	}
}

func hashPIN(t *testing.T, pin string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash pin: %v", err)
	}
	return string(hash)
}

func newPINRepo(t *testing.T, userID uuid.UUID, pin string) *serviceRepoStub {
	t.Helper()
	return &serviceRepoStub{
		credential: &domain.UserSecurityCredential{UserID: userID, TransactionPINHash: hashPIN(t, pin)},
	}
}

func strPtr(value string) *string { return &value }
