package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transferSelect = `
	SELECT
		tr.id, tr.user_id, tr.account_id, tr.recipient_name, tr.recipient_account, tr.recipient_bank,
		tr.recipient_country, tr.amount, tr.transfer_type, tr.reference_number, tr.status,
		tr.idempotency_key, tr.reviewed_by, tr.reviewed_at, tr.created_at,
		p.full_name, p.email
	FROM transfers tr
	LEFT JOIN profiles p ON p.id = tr.user_id
`

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var transfer domain.Transfer
	err := row.Scan(
		&transfer.ID,
		&transfer.UserID,
		&transfer.AccountID,
		&transfer.RecipientName,
		&transfer.RecipientAccount,
		&transfer.RecipientBank,
		&transfer.RecipientCountry,
		&transfer.Amount,
		&transfer.TransferType,
		&transfer.ReferenceNumber,
		&transfer.Status,
		&transfer.IdempotencyKey,
		&transfer.ReviewedBy,
		&transfer.ReviewedAt,
		&transfer.CreatedAt,
		&transfer.SenderName,
		&transfer.SenderEmail,
	)
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *PostgresRepository) listTransfers(ctx context.Context, where string, args ...any) ([]domain.Transfer, error) {
	rows, err := r.db.Query(ctx, transferSelect+where+" ORDER BY tr.created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *transfer)
	}
	return transfers, rows.Err()
}

func (r *PostgresRepository) findTransferByIdempotencyKey(ctx context.Context, q pgx.Tx, userID uuid.UUID, key string) (*domain.Transfer, error) {
	query := transferSelect + " WHERE tr.user_id = $1 AND tr.idempotency_key = $2"
	var row pgx.Row
	if q != nil {
		row = q.QueryRow(ctx, query, userID, key)
	} else {
		row = r.db.QueryRow(ctx, query, userID, key)
	}
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return transfer, nil
}

// CreateTransferWithDebit debits the user's highest-balance active account, stores the pending
// transfer and a pending debit row in one database transaction. When the transfer carries an
// idempotency key that was already used, the stored transfer is returned with replayed set.
func (r *PostgresRepository) CreateTransferWithDebit(ctx context.Context, transfer domain.Transfer, debitDescription string) (*domain.Transfer, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if transfer.IdempotencyKey != nil {
		existing, err := r.findTransferByIdempotencyKey(ctx, tx, transfer.UserID, *transfer.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return replayTransfer(existing, transfer)
		}
	}

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY balance DESC, created_at ASC
		LIMIT 1
	`, transfer.UserID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNoActiveAccount
		}
		return nil, false, err
	}

	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, false, err
	}
	if account.Balance < transfer.Amount {
		return nil, false, ErrInsufficientFunds
	}
	if _, err := setBalance(ctx, tx, account.ID, account.Balance-transfer.Amount); err != nil {
		return nil, false, err
	}

	var transferID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO transfers (
			user_id, account_id, recipient_name, recipient_account, recipient_bank, recipient_country,
			amount, transfer_type, reference_number, status, idempotency_key, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id
	`,
		transfer.UserID,
		account.ID,
		transfer.RecipientName,
		transfer.RecipientAccount,
		transfer.RecipientBank,
		transfer.RecipientCountry,
		transfer.Amount,
		transfer.TransferType,
		transfer.ReferenceNumber,
		domain.TransferStatusPending,
		transfer.IdempotencyKey,
	).Scan(&transferID)
	if err != nil {
		if isUniqueViolation(err) && transfer.IdempotencyKey != nil {
			// A concurrent request with the same key won the race.
			tx.Rollback(ctx)
			existing, findErr := r.findTransferByIdempotencyKey(ctx, nil, transfer.UserID, *transfer.IdempotencyKey)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing != nil {
				return replayTransfer(existing, transfer)
			}
		}
		return nil, false, fmt.Errorf("insert transfer: %w", err)
	}

	reference := transfer.ReferenceNumber
	recipient := transfer.RecipientName
	if _, err := insertTransaction(ctx, tx, domain.Transaction{
		AccountID:       account.ID,
		TransactionType: domain.TransactionTypeDebit,
		Amount:          transfer.Amount,
		Description:     &debitDescription,
		Recipient:       &recipient,
		Status:          domain.TransactionStatusPending,
		Reference:       &reference,
	}); err != nil {
		return nil, false, err
	}

	stored, err := scanTransfer(tx.QueryRow(ctx, transferSelect+" WHERE tr.id = $1", transferID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// replayTransfer returns the stored transfer for a reused key, refusing a different amount or recipient.
func replayTransfer(existing *domain.Transfer, requested domain.Transfer) (*domain.Transfer, bool, error) {
	if existing.Amount != requested.Amount || existing.RecipientAccount != requested.RecipientAccount {
		return nil, false, ErrIdempotencyKeyReused
	}
	return existing, true, nil
}

// ListTransfersByUserID returns a user's transfers, newest first.
func (r *PostgresRepository) ListTransfersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error) {
	return r.listTransfers(ctx, " WHERE tr.user_id = $1", userID)
}

// ListTransfersByStatus returns transfers in the given status, or all transfers when status is empty.
func (r *PostgresRepository) ListTransfersByStatus(ctx context.Context, status string) ([]domain.Transfer, error) {
	return r.listTransfers(ctx, " WHERE ($1 = '' OR tr.status = $1)", status)
}

// CountTransfersByStatus counts transfers in the given status.
func (r *PostgresRepository) CountTransfersByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE status = $1`, status).Scan(&count)
	return count, err
}

// CountPendingTransfersOlderThan counts pending transfers created before cutoff.
func (r *PostgresRepository) CountPendingTransfersOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE status = 'pending' AND created_at < $1`, cutoff).Scan(&count)
	return count, err
}

// lockPendingTransfer loads a transfer under FOR UPDATE and requires it to be pending.
func lockPendingTransfer(ctx context.Context, tx pgx.Tx, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := scanTransfer(tx.QueryRow(ctx, transferSelect+" WHERE tr.id = $1 FOR UPDATE OF tr", transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	if transfer.Status != domain.TransferStatusPending {
		return nil, ErrTransferNotPending
	}
	return transfer, nil
}

func reviewTransfer(ctx context.Context, tx pgx.Tx, transferID uuid.UUID, status string, adminID uuid.UUID) (*domain.Transfer, error) {
	_, err := tx.Exec(ctx, `
		UPDATE transfers
		SET status = $2, reviewed_by = $3, reviewed_at = NOW()
		WHERE id = $1
	`, transferID, status, adminID)
	if err != nil {
		return nil, fmt.Errorf("update transfer status: %w", err)
	}
	return scanTransfer(tx.QueryRow(ctx, transferSelect+" WHERE tr.id = $1", transferID))
}

// ApproveTransfer completes a pending transfer and its pending debit row.
func (r *PostgresRepository) ApproveTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transfer, err := lockPendingTransfer(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET status = 'completed'
		WHERE reference = $1 AND transaction_type = 'debit' AND status = 'pending'
	`, transfer.ReferenceNumber)
	if err != nil {
		return nil, fmt.Errorf("complete debit row: %w", err)
	}

	updated, err := reviewTransfer(ctx, tx, transfer.ID, domain.TransferStatusCompleted, adminID)
	if err != nil {
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, transfer.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectTransfer rejects a pending transfer, refunds the debited account and reverses the debit row.
func (r *PostgresRepository) RejectTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transfer, err := lockPendingTransfer(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}

	if transfer.AccountID != nil {
		account, err := lockAccount(ctx, tx, *transfer.AccountID)
		if err != nil {
			return nil, err
		}
		if _, err := setBalance(ctx, tx, account.ID, account.Balance+transfer.Amount); err != nil {
			return nil, err
		}

		reference := transfer.ReferenceNumber
		description := fmt.Sprintf("Refund: transfer %s rejected", transfer.ReferenceNumber)
		if _, err := insertTransaction(ctx, tx, domain.Transaction{
			AccountID:       account.ID,
			TransactionType: domain.TransactionTypeCredit,
			Amount:          transfer.Amount,
			Description:     &description,
			Status:          domain.TransactionStatusCompleted,
			Reference:       &reference,
		}); err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			UPDATE transactions
			SET status = 'reversed'
			WHERE account_id = $1 AND reference = $2 AND transaction_type = 'debit' AND status = 'pending'
		`, account.ID, transfer.ReferenceNumber)
		if err != nil {
			return nil, fmt.Errorf("reverse debit row: %w", err)
		}
	}

	updated, err := reviewTransfer(ctx, tx, transfer.ID, domain.TransferStatusRejected, adminID)
	if err != nil {
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, transfer.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}
