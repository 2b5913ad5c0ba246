/**
 * @description
 * This file contains the HTTP handlers for the customer-facing endpoints. Handlers
 * parse the request, call the application service, and map its sentinel errors to
 * HTTP statuses.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/agent-support/projectheritag/internal/app"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

// BootstrapProfileHandler creates the caller's profile and primary account after signup.
func (h *Handlers) BootstrapProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.CreateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.service.BootstrapProfile(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "bootstrap_profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// GetProfileHandler returns the caller's profile.
func (h *Handlers) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "get_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfileHandler applies a self-service profile edit.
func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// DashboardHandler returns the customer landing view.
func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	dashboard, err := h.service.GetDashboard(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// PINStatusHandler reports which PIN step the client must show next.
func (h *Handlers) PINStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetPINStatus(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "pin_status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SetupPINHandler creates the caller's transfer PIN.
func (h *Handlers) SetupPINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.SetupPINRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.SetupTransactionPIN(r.Context(), userID, req); err != nil {
		writeServiceError(w, "pin_setup", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Transaction PIN created"})
}

// ChangePINHandler replaces the caller's transfer PIN.
func (h *Handlers) ChangePINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.ChangePINRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.ChangeTransactionPIN(r.Context(), userID, req); err != nil {
		writeServiceError(w, "pin_change", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction PIN updated"})
}

// ListAccountsHandler returns the caller's accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// ListTransactionsHandler returns the caller's transaction history.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	opts := domain.TransactionListOptions{
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
		Type:   strings.ToLower(strings.TrimSpace(query.Get("type"))),
	}
	transactions, err := h.service.ListTransactions(r.Context(), userID, opts)
	if err != nil {
		writeServiceError(w, "list_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

// TransactionReceiptHandler serves the plain-text receipt of one transaction.
func (h *Handlers) TransactionReceiptHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	filename, body, err := h.service.TransactionReceipt(r.Context(), userID, transactionID)
	if err != nil {
		writeServiceError(w, "transaction_receipt", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// SubmitTransferHandler accepts a wire-style transfer request.
func (h *Handlers) SubmitTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, replayed, err := h.service.SubmitTransfer(r.Context(), userID, req, idempotencyKey(r))
	if err != nil {
		writeServiceError(w, "transfer", err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

// ListTransfersHandler returns the caller's transfer requests.
func (h *Handlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	transfers, err := h.service.ListTransfers(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list_transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// InternalTransferHandler moves money to another customer.
func (h *Handlers) InternalTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.InternalTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	log.Printf("level=info component=api endpoint=internal_transfer outcome=accepted sender_id=%s amount=%d", userID, req.Amount)
	receipt, err := h.service.ExecuteInternalTransfer(r.Context(), userID, req, idempotencyKey(r))
	if err != nil {
		writeServiceError(w, "internal_transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ListBillsHandler returns the caller's bills.
func (h *Handlers) ListBillsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	bills, err := h.service.ListBills(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list_bills", err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

// PayBillHandler settles one of the caller's pending bills.
func (h *Handlers) PayBillHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	billID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	bill, err := h.service.PayBill(r.Context(), userID, billID)
	if err != nil {
		writeServiceError(w, "pay_bill", err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// CryptoPricesHandler returns the cached quote of every supported coin.
func (h *Handlers) CryptoPricesHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.GetCryptoPrices(r.Context())
	if err != nil {
		writeServiceError(w, "crypto_prices", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ListWalletsHandler returns the caller's wallets with USD valuation.
func (h *Handlers) ListWalletsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	wallets, err := h.service.ListWallets(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list_wallets", err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

// ReceiveAddressHandler returns the caller's deposit address for a coin.
func (h *Handlers) ReceiveAddressHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.service.ReceiveAddress(r.Context(), userID, chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, "receive_address", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// ListCryptoTransactionsHandler returns the caller's crypto history.
func (h *Handlers) ListCryptoTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	txs, err := h.service.ListCryptoTransactions(r.Context(), userID, queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(w, "list_crypto_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// SendCryptoHandler records a PIN-gated withdrawal.
func (h *Handlers) SendCryptoHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req domain.SendCryptoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.service.SendCrypto(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, "send_crypto", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// RefreshPricesHandler lets internal callers force a price refresh.
func (h *Handlers) RefreshPricesHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.RefreshPrices(r.Context())
	if err != nil {
		writeServiceError(w, "refresh_prices", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid user ID in token")
		return uuid.Nil, false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

// writeServiceError maps service and store errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var limited *app.RateLimitError
	var short *app.InsufficientFundsError

	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many PIN attempts. Please wait and try again.")
	case errors.Is(err, store.ErrTransactionPINNotSet):
		writeError(w, http.StatusPreconditionFailed, "Transaction PIN is not set. Please create your PIN first.")
	case errors.Is(err, app.ErrTransactionPINLocked):
		writeError(w, http.StatusLocked, "Too many incorrect PIN attempts. Please wait and try again.")
	case errors.Is(err, app.ErrInvalidTransactionPIN):
		writeError(w, http.StatusUnauthorized, "Invalid transaction PIN.")
	case errors.As(err, &short):
		writeError(w, http.StatusPaymentRequired, short.Error())
	case errors.Is(err, store.ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientCryptoBalance):
		writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, store.ErrNegativeBalance):
		writeError(w, http.StatusBadRequest, "Balance cannot be negative")
	case errors.Is(err, app.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrProfileNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrTransferNotFound),
		errors.Is(err, store.ErrWalletNotFound),
		errors.Is(err, store.ErrBillNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNoActiveAccount), errors.Is(err, store.ErrRecipientNoActiveAccount):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrTransferNotPending),
		errors.Is(err, store.ErrTransactionPINAlreadySet),
		errors.Is(err, store.ErrBillAlreadyPaid),
		errors.Is(err, store.ErrUsernameTaken),
		errors.Is(err, store.ErrIdempotencyKeyReused):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrSelfTransfer), errors.Is(err, store.ErrSelfTransfer):
		writeError(w, http.StatusBadRequest, app.ErrSelfTransfer.Error())
	case errors.Is(err, app.ErrInvalidPINFormat),
		errors.Is(err, app.ErrPINMismatch),
		errors.Is(err, app.ErrInvalidTransferAmount),
		errors.Is(err, app.ErrMissingRecipient),
		errors.Is(err, app.ErrCountryRequired),
		errors.Is(err, app.ErrInvalidTransferType),
		errors.Is(err, app.ErrProfileRequired),
		errors.Is(err, app.ErrEmptyUpdate),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrInvalidBalanceOperation),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrNegativeFee),
		errors.Is(err, app.ErrUnsupportedCoin),
		errors.Is(err, app.ErrDestinationRequired),
		errors.Is(err, app.ErrAddressRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrPriceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Price data is temporarily unavailable")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
