package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const billColumns = `id, user_id, biller_name, account_number, amount, category, due_date, status, paid_at, created_at`

func scanBill(row rowScanner) (*domain.Bill, error) {
	var bill domain.Bill
	err := row.Scan(
		&bill.ID,
		&bill.UserID,
		&bill.BillerName,
		&bill.AccountNumber,
		&bill.Amount,
		&bill.Category,
		&bill.DueDate,
		&bill.Status,
		&bill.PaidAt,
		&bill.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// ListBillsByUserID returns a user's bills ordered by due date.
func (r *PostgresRepository) ListBillsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Bill, error) {
	rows, err := r.db.Query(ctx, `SELECT `+billColumns+` FROM bills WHERE user_id = $1 ORDER BY due_date ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

// PayBill debits the user's highest-balance active account and marks the bill paid atomically.
func (r *PostgresRepository) PayBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) (*domain.Bill, *domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := scanBill(tx.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1 AND user_id = $2 FOR UPDATE`, billID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrBillNotFound
		}
		return nil, nil, err
	}
	if bill.Status == domain.BillStatusPaid {
		return nil, nil, ErrBillAlreadyPaid
	}

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY balance DESC, created_at ASC
		LIMIT 1
	`, userID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNoActiveAccount
		}
		return nil, nil, err
	}
	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.Balance < bill.Amount {
		return nil, nil, ErrInsufficientFunds
	}
	if _, err := setBalance(ctx, tx, account.ID, account.Balance-bill.Amount); err != nil {
		return nil, nil, err
	}

	description := "Bill payment: " + bill.BillerName
	biller := bill.BillerName
	debit, err := insertTransaction(ctx, tx, domain.Transaction{
		AccountID:       account.ID,
		TransactionType: domain.TransactionTypeDebit,
		Amount:          bill.Amount,
		Description:     &description,
		Recipient:       &biller,
		Status:          domain.TransactionStatusCompleted,
	})
	if err != nil {
		return nil, nil, err
	}

	paid, err := scanBill(tx.QueryRow(ctx, `
		UPDATE bills SET status = 'paid', paid_at = NOW()
		WHERE id = $1
		RETURNING `+billColumns, bill.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("mark bill paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return paid, debit, nil
}

// ListPortfoliosByUserID returns portfolios with their holdings and derived gains.
func (r *PostgresRepository) ListPortfoliosByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Portfolio, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, name FROM portfolios WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	var portfolios []domain.Portfolio
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var p domain.Portfolio
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name); err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(portfolios)
		portfolios = append(portfolios, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(portfolios) == 0 {
		return portfolios, nil
	}

	holdingRows, err := r.db.Query(ctx, `
		SELECT h.id, h.portfolio_id, h.symbol, h.name, h.quantity, h.purchase_price, h.current_price
		FROM holdings h
		JOIN portfolios p ON p.id = h.portfolio_id
		WHERE p.user_id = $1
		ORDER BY h.created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer holdingRows.Close()

	for holdingRows.Next() {
		var h domain.Holding
		if err := holdingRows.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Name, &h.Quantity, &h.PurchasePrice, &h.CurrentPrice); err != nil {
			return nil, err
		}
		if i, ok := index[h.PortfolioID]; ok {
			portfolios[i].Holdings = append(portfolios[i].Holdings, h)
		}
	}
	if err := holdingRows.Err(); err != nil {
		return nil, err
	}

	for i := range portfolios {
		portfolios[i].Recalculate()
	}
	return portfolios, nil
}
