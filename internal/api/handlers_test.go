package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agent-support/projectheritag/internal/app"
	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// handlerRepoStub implements the repository calls reached by the handler tests.
type handlerRepoStub struct {
	store.Repository

	pinHash     string
	transferErr error
	replayed    bool
	accounts    []domain.Account
	profiles    map[string]*domain.Profile
	transaction *domain.Transaction
	admins      map[uuid.UUID]bool
}

func (s *handlerRepoStub) GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	if s.pinHash == "" {
		return nil, store.ErrTransactionPINNotSet
	}
	return &domain.UserSecurityCredential{UserID: userID, TransactionPINHash: s.pinHash}, nil
}

func (s *handlerRepoStub) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error) {
	return &domain.UserSecurityCredential{UserID: userID, TransactionPINHash: s.pinHash, FailedAttempts: 1}, nil
}

func (s *handlerRepoStub) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (s *handlerRepoStub) CreateTransferWithDebit(ctx context.Context, transfer domain.Transfer, debitDescription string) (*domain.Transfer, bool, error) {
	if s.transferErr != nil {
		return nil, false, s.transferErr
	}
	transfer.ID = uuid.New()
	transfer.CreatedAt = time.Now()
	return &transfer, s.replayed, nil
}

func (s *handlerRepoStub) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.accounts, nil
}

func (s *handlerRepoStub) FindProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	if profile, ok := s.profiles[username]; ok {
		return profile, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *handlerRepoStub) FindProfileByAccountNumber(ctx context.Context, accountNumber string) (*domain.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (s *handlerRepoStub) GetTransactionForUser(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.transaction == nil || s.transaction.ID != transactionID {
		return nil, store.ErrTransactionNotFound
	}
	return s.transaction, nil
}

func (s *handlerRepoStub) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	return s.admins[userID], nil
}

func newHandlerRepo(t *testing.T) *handlerRepoStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash pin: %v", err)
	}
	return &handlerRepoStub{pinHash: string(hash)}
}

// newTestRouter mounts the handlers behind a stand-in for the auth middleware.
func newTestRouter(repo store.Repository, userID uuid.UUID) http.Handler {
	svc := app.NewService(repo, nil, config.Config{PINMaxAttempts: 5, PINLockoutSeconds: 900})
	h := NewHandlers(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), userIDKey, userID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Post("/transfers", h.SubmitTransferHandler)
	r.Post("/internal-transfers", h.InternalTransferHandler)
	r.Get("/transactions/{id}/receipt", h.TransactionReceiptHandler)
	r.Post("/me/pin", h.SetupPINHandler)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
	return payload["error"]
}

func TestSubmitTransferHandler(t *testing.T) {
	body := map[string]interface{}{
		"recipient_name":    "Grace Hopper",
		"recipient_account": "998877",
		"amount":            2500,
		"transaction_pin":   "1234",
	}

	t.Run("created", func(t *testing.T) {
		rec := doJSON(t, newTestRouter(newHandlerRepo(t), uuid.New()), http.MethodPost, "/transfers", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		var receipt domain.TransferReceipt
		if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if receipt.Status != domain.TransferStatusPending || !strings.HasPrefix(receipt.ReferenceNumber, "HER") {
			t.Fatalf("unexpected receipt %+v", receipt)
		}
	})

	t.Run("replay returns 200", func(t *testing.T) {
		repo := newHandlerRepo(t)
		repo.replayed = true
		rec := doJSON(t, newTestRouter(repo, uuid.New()), http.MethodPost, "/transfers", body, map[string]string{"Idempotency-Key": "abc"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("pin not set", func(t *testing.T) {
		rec := doJSON(t, newTestRouter(&handlerRepoStub{}, uuid.New()), http.MethodPost, "/transfers", body, nil)
		if rec.Code != http.StatusPreconditionFailed {
			t.Fatalf("expected 412, got %d", rec.Code)
		}
	})

	t.Run("wrong pin", func(t *testing.T) {
		wrong := map[string]interface{}{"recipient_name": "Grace", "recipient_account": "1", "amount": 10, "transaction_pin": "0000"}
		rec := doJSON(t, newTestRouter(newHandlerRepo(t), uuid.New()), http.MethodPost, "/transfers", wrong, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("insufficient funds", func(t *testing.T) {
		repo := newHandlerRepo(t)
		repo.transferErr = store.ErrInsufficientFunds
		repo.accounts = []domain.Account{{Balance: 1000, Status: domain.AccountStatusActive}}
		rec := doJSON(t, newTestRouter(repo, uuid.New()), http.MethodPost, "/transfers", body, nil)
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("expected 402, got %d", rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "Insufficient funds. You need $25.00 but only have $10.00" {
			t.Fatalf("unexpected message %q", msg)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		newTestRouter(newHandlerRepo(t), uuid.New()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestInternalTransferHandlerRecipientErrors(t *testing.T) {
	senderID := uuid.New()
	repo := newHandlerRepo(t)
	repo.profiles = map[string]*domain.Profile{"me": {ID: senderID, FullName: "Ada"}}
	router := newTestRouter(repo, senderID)

	rec := doJSON(t, router, http.MethodPost, "/internal-transfers", map[string]interface{}{
		"recipient_identifier": "ghost", "amount": 100, "transaction_pin": "1234",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "User with this username or account number does not exist" {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = doJSON(t, router, http.MethodPost, "/internal-transfers", map[string]interface{}{
		"recipient_identifier": "me", "amount": 100, "transaction_pin": "1234",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "You cannot send money to yourself" {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = doJSON(t, router, http.MethodPost, "/internal-transfers", map[string]interface{}{
		"recipient_identifier": "me", "amount": 0, "transaction_pin": "1234",
	}, nil)
	if msg := errorMessage(t, rec); rec.Code != http.StatusBadRequest || msg != "Amount must be greater than 0" {
		t.Fatalf("expected amount validation, got %d %q", rec.Code, msg)
	}
}

func TestSetupPINHandlerValidation(t *testing.T) {
	rec := doJSON(t, newTestRouter(&handlerRepoStub{}, uuid.New()), http.MethodPost, "/me/pin", map[string]string{"pin": "12", "confirm_pin": "12"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "PIN must be 4 digits" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestTransactionReceiptHandler(t *testing.T) {
	description := "Coffee"
	tx := &domain.Transaction{
		ID:              uuid.MustParse("abcdef12-0000-4000-8000-000000000000"),
		TransactionType: domain.TransactionTypeDebit,
		Amount:          450,
		Description:     &description,
		Status:          domain.TransactionStatusCompleted,
		CreatedAt:       time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
	}
	repo := &handlerRepoStub{transaction: tx}
	router := newTestRouter(repo, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/transactions/"+tx.ID.String()+"/receipt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="receipt-abcdef12.txt"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Reference: ABCDEF12") || !strings.Contains(rec.Body.String(), "Amount: $4.50") {
		t.Fatalf("unexpected receipt body %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions/"+uuid.NewString()+"/receipt", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign transaction, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions/not-a-uuid/receipt", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "rate limited", err: &app.RateLimitError{RetryAfterSeconds: 42}, wantStatus: http.StatusTooManyRequests},
		{name: "locked", err: app.ErrTransactionPINLocked, wantStatus: http.StatusLocked},
		{name: "negative balance", err: store.ErrNegativeBalance, wantStatus: http.StatusBadRequest, wantMsg: "Balance cannot be negative"},
		{name: "not pending", err: store.ErrTransferNotPending, wantStatus: http.StatusConflict},
		{name: "idempotency key reused", err: fmt.Errorf("failed to create transfer: %w", store.ErrIdempotencyKeyReused), wantStatus: http.StatusConflict},
		{name: "wrapped not found", err: errors.Join(errors.New("lookup"), store.ErrWalletNotFound), wantStatus: http.StatusNotFound},
		{name: "price unavailable", err: app.ErrPriceUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantMsg: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, "test", tt.err)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantMsg != "" {
				if msg := errorMessage(t, rec); msg != tt.wantMsg {
					t.Fatalf("expected %q, got %q", tt.wantMsg, msg)
				}
			}
		})
	}

	rec := httptest.NewRecorder()
	writeServiceError(rec, "test", &app.RateLimitError{RetryAfterSeconds: 42})
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
}

func TestRouterPublicAndGuardedRoutes(t *testing.T) {
	repo := newHandlerRepo(t)
	svc := app.NewService(repo, nil, config.Config{})
	router := NewRouter(NewHandlers(svc), svc, RouterConfig{
		Auth:           AuthConfig{JWKSURL: "http://127.0.0.1:0/jwks"},
		InternalAPIKey: "internal-secret",
		AllowedOrigins: []string{"https://*"},
	})

	tests := []struct {
		name       string
		method     string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "customer route needs token", method: http.MethodGet, path: "/me", wantStatus: http.StatusUnauthorized},
		{name: "admin route needs token", method: http.MethodGet, path: "/admin/overview", wantStatus: http.StatusUnauthorized},
		{name: "internal route needs key", method: http.MethodPost, path: "/internal/prices/refresh", wantStatus: http.StatusUnauthorized},
		{name: "internal refresh without price service", method: http.MethodPost, path: "/internal/prices/refresh", headers: map[string]string{"X-Internal-API-Key": "internal-secret"}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
