package api

import (
	"net/http"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
)

type walletAddressRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// AdminOverviewHandler returns the landing statistics.
func (h *Handlers) AdminOverviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.AdminOverview(r.Context())
	if err != nil {
		writeServiceError(w, "admin_overview", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// AdminListUsersHandler lists every customer profile.
func (h *Handlers) AdminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, "admin_list_users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// AdminUserViewHandler returns one customer with their accounts, wallets and recent activity.
func (h *Handlers) AdminUserViewHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	view, err := h.service.GetUserView(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "admin_user_view", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AdminUpdateProfileHandler edits a customer's profile fields.
func (h *Handlers) AdminUpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndPath(w, r, "userID")
	if !ok {
		return
	}
	var req domain.UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.service.AdminUpdateProfile(r.Context(), adminID, userID, req)
	if err != nil {
		writeServiceError(w, "admin_update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AdminSetUserStatusHandler changes a customer's account status.
func (h *Handlers) AdminSetUserStatusHandler(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndPath(w, r, "userID")
	if !ok {
		return
	}
	var req domain.StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := h.service.SetUserStatus(r.Context(), adminID, userID, req.Status)
	if err != nil {
		writeServiceError(w, "admin_user_status", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AdminActivateUserHandler activates a pending customer.
func (h *Handlers) AdminActivateUserHandler(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndPath(w, r, "userID")
	if !ok {
		return
	}
	profile, err := h.service.ActivateUser(r.Context(), adminID, userID)
	if err != nil {
		writeServiceError(w, "admin_activate_user", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AdminAdjustBalanceHandler adds to or subtracts from an account balance.
func (h *Handlers) AdminAdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	adminID, accountID, ok := adminAndPath(w, r, "accountID")
	if !ok {
		return
	}
	var req domain.BalanceAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	change, err := h.service.AdjustBalance(r.Context(), adminID, accountID, req)
	if err != nil {
		writeServiceError(w, "admin_adjust_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// AdminSetBalanceHandler overwrites an account balance.
func (h *Handlers) AdminSetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	adminID, accountID, ok := adminAndPath(w, r, "accountID")
	if !ok {
		return
	}
	var req domain.SetBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	change, err := h.service.SetBalance(r.Context(), adminID, accountID, req.Balance)
	if err != nil {
		writeServiceError(w, "admin_set_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// AdminSetAccountStatusHandler changes the status of a single account.
func (h *Handlers) AdminSetAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	adminID, accountID, ok := adminAndPath(w, r, "accountID")
	if !ok {
		return
	}
	var req domain.StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.service.SetAccountStatus(r.Context(), adminID, accountID, req.Status)
	if err != nil {
		writeServiceError(w, "admin_account_status", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// AdminEditTransactionHandler edits a ledger entry's amount, description or timestamp.
func (h *Handlers) AdminEditTransactionHandler(w http.ResponseWriter, r *http.Request) {
	adminID, transactionID, ok := adminAndPath(w, r, "transactionID")
	if !ok {
		return
	}
	var req domain.TransactionEdit
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.service.EditTransaction(r.Context(), adminID, transactionID, req)
	if err != nil {
		writeServiceError(w, "admin_edit_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// AdminListTransfersHandler lists transfers, filtered by the status query parameter.
func (h *Handlers) AdminListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.service.ListTransfersForReview(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, "admin_list_transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// AdminApproveTransferHandler completes a pending transfer.
func (h *Handlers) AdminApproveTransferHandler(w http.ResponseWriter, r *http.Request) {
	adminID, transferID, ok := adminAndPath(w, r, "transferID")
	if !ok {
		return
	}
	transfer, err := h.service.ApproveTransfer(r.Context(), adminID, transferID)
	if err != nil {
		writeServiceError(w, "admin_approve_transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// AdminRejectTransferHandler rejects a pending transfer and refunds the sender.
func (h *Handlers) AdminRejectTransferHandler(w http.ResponseWriter, r *http.Request) {
	adminID, transferID, ok := adminAndPath(w, r, "transferID")
	if !ok {
		return
	}
	transfer, err := h.service.RejectTransfer(r.Context(), adminID, transferID)
	if err != nil {
		writeServiceError(w, "admin_reject_transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// AdminListWalletsHandler lists every crypto wallet.
func (h *Handlers) AdminListWalletsHandler(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.service.ListAllWallets(r.Context())
	if err != nil {
		writeServiceError(w, "admin_list_wallets", err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

// AdminUpdateWalletAddressHandler sets the deposit address shown on a wallet.
func (h *Handlers) AdminUpdateWalletAddressHandler(w http.ResponseWriter, r *http.Request) {
	adminID, walletID, ok := adminAndPath(w, r, "walletID")
	if !ok {
		return
	}
	var req walletAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, err := h.service.UpdateWalletAddress(r.Context(), adminID, walletID, req.WalletAddress)
	if err != nil {
		writeServiceError(w, "admin_wallet_address", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// AdminUpdateWalletHandler edits a wallet's balance or address.
func (h *Handlers) AdminUpdateWalletHandler(w http.ResponseWriter, r *http.Request) {
	adminID, walletID, ok := adminAndPath(w, r, "walletID")
	if !ok {
		return
	}
	var req domain.WalletUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, err := h.service.UpdateWallet(r.Context(), adminID, walletID, req)
	if err != nil {
		writeServiceError(w, "admin_update_wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// AdminAddCryptoHandler credits a customer's wallet.
func (h *Handlers) AdminAddCryptoHandler(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndPath(w, r, "userID")
	if !ok {
		return
	}
	var req domain.CryptoDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.service.AddCrypto(r.Context(), adminID, userID, req)
	if err != nil {
		writeServiceError(w, "admin_add_crypto", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// AdminListCryptoFeesHandler lists the per-customer BTC fees.
func (h *Handlers) AdminListCryptoFeesHandler(w http.ResponseWriter, r *http.Request) {
	fees, err := h.service.ListCryptoFees(r.Context())
	if err != nil {
		writeServiceError(w, "admin_list_crypto_fees", err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// AdminUpdateCryptoFeeHandler sets the BTC fee charged to one customer.
func (h *Handlers) AdminUpdateCryptoFeeHandler(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := adminAndPath(w, r, "userID")
	if !ok {
		return
	}
	var req domain.CryptoFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fee, err := h.service.UpdateCryptoFee(r.Context(), adminID, userID, req.BTCFee)
	if err != nil {
		writeServiceError(w, "admin_update_crypto_fee", err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

// AdminListLogsHandler returns the newest admin audit entries, capped by the limit query parameter.
func (h *Handlers) AdminListLogsHandler(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListAdminLogs(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(w, "admin_list_logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// adminAndPath resolves the calling admin and the UUID path parameter, writing 401 or 400 itself.
func adminAndPath(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, uuid.UUID, bool) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := pathUUID(w, r, param)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return adminID, id, true
}
