package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, user_id, account_number, account_type, balance, COALESCE(currency, 'USD'), status, created_at, updated_at`

const transactionColumns = `t.id, t.account_id, t.transaction_type, t.amount, t.description, t.recipient, t.status, t.reference, t.idempotency_key, t.created_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&account.AccountType,
		&account.Balance,
		&account.Currency,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.TransactionType,
		&tx.Amount,
		&tx.Description,
		&tx.Recipient,
		&tx.Status,
		&tx.Reference,
		&tx.IdempotencyKey,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// lockAccount reads an account row under FOR UPDATE inside tx.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// insertTransaction appends a ledger row inside tx and returns it with its generated id.
func insertTransaction(ctx context.Context, tx pgx.Tx, entry domain.Transaction) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions AS t (account_id, transaction_type, amount, description, recipient, status, reference, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + transactionColumns
	stored, err := scanTransaction(tx.QueryRow(ctx, query,
		entry.AccountID,
		entry.TransactionType,
		entry.Amount,
		entry.Description,
		entry.Recipient,
		entry.Status,
		entry.Reference,
		entry.IdempotencyKey,
	))
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return stored, nil
}

func setBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, balance int64) (*domain.Account, error) {
	query := `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID, balance))
	if err != nil {
		if isCheckViolation(err) {
			return nil, ErrNegativeBalance
		}
		return nil, fmt.Errorf("update balance: %w", err)
	}
	return account, nil
}

// ListAccountsByUserID returns a user's accounts, oldest first.
func (r *PostgresRepository) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// GetAccount retrieves a single account by id.
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// AccountTotals returns the number of accounts and the sum of their balances.
func (r *PostgresRepository) AccountTotals(ctx context.Context) (int, int64, error) {
	var count int
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(balance), 0)::bigint FROM accounts`).Scan(&count, &total)
	return count, total, err
}

// UpdateAccountStatus sets an account's status.
func (r *PostgresRepository) UpdateAccountStatus(ctx context.Context, accountID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, account.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// AdjustAccountBalance adds delta (which may be negative) to an account and logs the movement.
func (r *PostgresRepository) AdjustAccountBalance(ctx context.Context, accountID uuid.UUID, delta int64, description string, audit *domain.AdminLog) (*domain.BalanceChange, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	next := current.Balance + delta
	if next < 0 {
		return nil, ErrNegativeBalance
	}

	change, err := applyBalanceChange(ctx, tx, current, next, description)
	if err != nil {
		return nil, err
	}
	if err := recordBalanceDetails(audit, change); err != nil {
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, current.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return change, nil
}

// SetAccountBalance overwrites an account balance and writes a reconciling ledger row for the difference.
func (r *PostgresRepository) SetAccountBalance(ctx context.Context, accountID uuid.UUID, balance int64, description string, audit *domain.AdminLog) (*domain.BalanceChange, error) {
	if balance < 0 {
		return nil, ErrNegativeBalance
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	change, err := applyBalanceChange(ctx, tx, current, balance, description)
	if err != nil {
		return nil, err
	}
	if err := recordBalanceDetails(audit, change); err != nil {
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, current.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return change, nil
}

// applyBalanceChange moves a locked account to next and records the difference as a completed ledger row.
func applyBalanceChange(ctx context.Context, tx pgx.Tx, current *domain.Account, next int64, description string) (*domain.BalanceChange, error) {
	updated, err := setBalance(ctx, tx, current.ID, next)
	if err != nil {
		return nil, err
	}
	change := &domain.BalanceChange{
		Account:         *updated,
		PreviousBalance: current.Balance,
		NewBalance:      updated.Balance,
	}

	delta := next - current.Balance
	if delta == 0 {
		return change, nil
	}
	entry := domain.Transaction{
		AccountID:       current.ID,
		TransactionType: domain.TransactionTypeCredit,
		Amount:          delta,
		Description:     &description,
		Status:          domain.TransactionStatusCompleted,
	}
	if delta < 0 {
		entry.TransactionType = domain.TransactionTypeDebit
		entry.Amount = -delta
	}
	stored, err := insertTransaction(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	change.Transaction = stored
	return change, nil
}

// recordBalanceDetails adds the locked before/after balances to an audit entry's details.
func recordBalanceDetails(audit *domain.AdminLog, change *domain.BalanceChange) error {
	if audit == nil {
		return nil
	}
	details := map[string]interface{}{}
	if len(audit.Details) > 0 {
		if err := json.Unmarshal(audit.Details, &details); err != nil {
			return fmt.Errorf("decode audit details: %w", err)
		}
	}
	details["account_id"] = change.Account.ID
	details["previous_balance"] = change.PreviousBalance
	details["new_balance"] = change.NewBalance
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	audit.Details = raw
	return nil
}

// ListTransactionsByUserID returns ledger rows across all of a user's accounts, newest first.
func (r *PostgresRepository) ListTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1 AND ($2 = '' OR t.transaction_type = $2)
		ORDER BY t.created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, opts.Type, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// GetTransaction retrieves a ledger row by id.
func (r *PostgresRepository) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// GetTransactionForUser retrieves a ledger row only when it belongs to one of the user's accounts.
func (r *PostgresRepository) GetTransactionForUser(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.id = $1 AND a.user_id = $2
	`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// EditTransaction rewrites the editable fields of a ledger row. Balances are not touched.
func (r *PostgresRepository) EditTransaction(ctx context.Context, transactionID uuid.UUID, edit domain.TransactionEdit, audit *domain.AdminLog) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE transactions AS t
		SET
			amount = COALESCE($2, t.amount),
			description = COALESCE($3, t.description),
			created_at = COALESCE($4, t.created_at)
		WHERE t.id = $1
		RETURNING ` + transactionColumns
	updated, err := scanTransaction(tx.QueryRow(ctx, query, transactionID, edit.Amount, edit.Description, edit.CreatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	var owner uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT user_id FROM accounts WHERE id = $1`, updated.AccountID).Scan(&owner); err != nil {
		return nil, fmt.Errorf("load transaction owner: %w", err)
	}
	if err := insertAdminLogFor(ctx, tx, audit, owner); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// ExecuteInternalTransfer moves funds between two customers in a single database transaction.
// The sender is debited from their highest-balance active account and the recipient is credited
// on their oldest active account. Both rows share params.Reference.
func (r *PostgresRepository) ExecuteInternalTransfer(ctx context.Context, params domain.InternalTransferParams) (*domain.InternalTransferResult, error) {
	if params.SenderID == params.RecipientID {
		return nil, ErrSelfTransfer
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != nil {
		claimed, err := claimInternalTransfer(ctx, tx, params)
		if err != nil {
			return nil, err
		}
		if !claimed {
			replay, err := findInternalTransferReplay(ctx, tx, params)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return replay, nil
		}
	}

	var senderAccountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY balance DESC, created_at ASC
		LIMIT 1
	`, params.SenderID).Scan(&senderAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAccount
		}
		return nil, err
	}

	var recipientAccountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at ASC
		LIMIT 1
	`, params.RecipientID).Scan(&recipientAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientNoActiveAccount
		}
		return nil, err
	}

	// Lock in a stable order so concurrent opposite-direction transfers cannot deadlock.
	first, second := senderAccountID, recipientAccountID
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		account, err := lockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}

	sender := locked[senderAccountID]
	recipient := locked[recipientAccountID]
	if sender.Status != domain.AccountStatusActive {
		return nil, ErrNoActiveAccount
	}
	if recipient.Status != domain.AccountStatusActive {
		return nil, ErrRecipientNoActiveAccount
	}
	if sender.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	updatedSender, err := setBalance(ctx, tx, sender.ID, sender.Balance-params.Amount)
	if err != nil {
		return nil, err
	}
	updatedRecipient, err := setBalance(ctx, tx, recipient.ID, recipient.Balance+params.Amount)
	if err != nil {
		return nil, err
	}

	reference := params.Reference
	debitDescription := params.DebitDescription
	creditDescription := params.CreditDescription
	recipientName := params.RecipientName
	senderName := params.SenderName

	debit, err := insertTransaction(ctx, tx, domain.Transaction{
		AccountID:       sender.ID,
		TransactionType: domain.TransactionTypeDebit,
		Amount:          params.Amount,
		Description:     &debitDescription,
		Recipient:       &recipientName,
		Status:          domain.TransactionStatusCompleted,
		Reference:       &reference,
		IdempotencyKey:  params.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if _, err := insertTransaction(ctx, tx, domain.Transaction{
		AccountID:       recipient.ID,
		TransactionType: domain.TransactionTypeCredit,
		Amount:          params.Amount,
		Description:     &creditDescription,
		Recipient:       &senderName,
		Status:          domain.TransactionStatusCompleted,
		Reference:       &reference,
	}); err != nil {
		return nil, err
	}

	if params.IdempotencyKey != nil {
		if err := completeInternalTransferClaim(ctx, tx, params, updatedSender); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.InternalTransferResult{
		Reference:        reference,
		RecipientName:    params.RecipientName,
		SenderAccount:    *updatedSender,
		RecipientAccount: *updatedRecipient,
		Amount:           params.Amount,
		CreatedAt:        debit.CreatedAt,
	}, nil
}

// claimInternalTransfer reserves the sender's idempotency key inside tx. A concurrent holder of the
// same key blocks the insert until it commits or rolls back; false means the key is already used.
func claimInternalTransfer(ctx context.Context, tx pgx.Tx, params domain.InternalTransferParams) (bool, error) {
	result, err := tx.Exec(ctx, `
		INSERT INTO internal_transfer_claims (sender_id, idempotency_key, recipient_id, recipient_name, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (sender_id, idempotency_key) DO NOTHING
	`, params.SenderID, *params.IdempotencyKey, params.RecipientID, params.RecipientName, params.Amount)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func completeInternalTransferClaim(ctx context.Context, tx pgx.Tx, params domain.InternalTransferParams, sender *domain.Account) error {
	_, err := tx.Exec(ctx, `
		UPDATE internal_transfer_claims
		SET reference = $3, sender_account_id = $4, sender_balance_after = $5, currency = $6, completed_at = NOW()
		WHERE sender_id = $1 AND idempotency_key = $2
	`, params.SenderID, *params.IdempotencyKey, params.Reference, sender.ID, sender.Balance, sender.Currency)
	if err != nil {
		return fmt.Errorf("complete idempotency claim: %w", err)
	}
	return nil
}

// findInternalTransferReplay returns the receipt figures stored when the key was first used.
// A key reused for another recipient or amount is refused.
func findInternalTransferReplay(ctx context.Context, tx pgx.Tx, params domain.InternalTransferParams) (*domain.InternalTransferResult, error) {
	var (
		recipientID     uuid.UUID
		recipientName   string
		amount          int64
		reference       *string
		senderAccountID *uuid.UUID
		balanceAfter    *int64
		currency        *string
		completedAt     *time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT recipient_id, recipient_name, amount, reference, sender_account_id, sender_balance_after, currency, completed_at
		FROM internal_transfer_claims
		WHERE sender_id = $1 AND idempotency_key = $2
	`, params.SenderID, *params.IdempotencyKey).Scan(
		&recipientID, &recipientName, &amount, &reference, &senderAccountID, &balanceAfter, &currency, &completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load idempotency claim: %w", err)
	}
	if recipientID != params.RecipientID || amount != params.Amount {
		return nil, ErrIdempotencyKeyReused
	}
	if reference == nil || senderAccountID == nil || balanceAfter == nil || completedAt == nil {
		return nil, fmt.Errorf("idempotency claim for key %q is incomplete", *params.IdempotencyKey)
	}

	senderAccount, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, *senderAccountID))
	if err != nil {
		return nil, fmt.Errorf("load sender account: %w", err)
	}
	senderAccount.Balance = *balanceAfter
	if currency != nil {
		senderAccount.Currency = *currency
	}

	return &domain.InternalTransferResult{
		Reference:     *reference,
		RecipientName: recipientName,
		SenderAccount: *senderAccount,
		Amount:        amount,
		CreatedAt:     *completedAt,
		Replayed:      true,
	}, nil
}
