package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, coin_symbol, wallet_address, balance, created_at, updated_at`

const cryptoTransactionColumns = `id, user_id, coin_symbol, amount, usd_value, fee, transaction_type, status, destination_address, reference_number, created_at`

func scanWallet(row rowScanner) (*domain.CryptoWallet, error) {
	var wallet domain.CryptoWallet
	err := row.Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.CoinSymbol,
		&wallet.WalletAddress,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func scanCryptoTransaction(row rowScanner) (*domain.CryptoTransaction, error) {
	var tx domain.CryptoTransaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.CoinSymbol,
		&tx.Amount,
		&tx.USDValue,
		&tx.Fee,
		&tx.TransactionType,
		&tx.Status,
		&tx.DestinationAddress,
		&tx.ReferenceNumber,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (r *PostgresRepository) queryWallets(ctx context.Context, query string, args ...any) ([]domain.CryptoWallet, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.CryptoWallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *wallet)
	}
	return wallets, rows.Err()
}

func (r *PostgresRepository) queryCryptoTransactions(ctx context.Context, query string, args ...any) ([]domain.CryptoTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.CryptoTransaction
	for rows.Next() {
		tx, err := scanCryptoTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// ListWalletsByUserID returns a user's crypto wallets.
func (r *PostgresRepository) ListWalletsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.CryptoWallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM crypto_wallets WHERE user_id = $1 ORDER BY coin_symbol ASC`, userID)
}

// ListWallets returns every crypto wallet.
func (r *PostgresRepository) ListWallets(ctx context.Context) ([]domain.CryptoWallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM crypto_wallets ORDER BY created_at DESC`)
}

// FindOrCreateWallet returns the user's wallet for coinSymbol, creating it with address when absent.
func (r *PostgresRepository) FindOrCreateWallet(ctx context.Context, userID uuid.UUID, coinSymbol string, address string) (*domain.CryptoWallet, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO crypto_wallets (user_id, coin_symbol, wallet_address, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id, coin_symbol) DO NOTHING
	`, userID, coinSymbol, address)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	wallet, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM crypto_wallets WHERE user_id = $1 AND coin_symbol = $2`, userID, coinSymbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return wallet, nil
}

// UpdateWallet applies an admin edit to a wallet's address and/or balance.
func (r *PostgresRepository) UpdateWallet(ctx context.Context, walletID uuid.UUID, req domain.WalletUpdateRequest, audit *domain.AdminLog) (*domain.CryptoWallet, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE crypto_wallets
		SET
			wallet_address = COALESCE($2, wallet_address),
			balance = COALESCE($3::numeric, balance),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + walletColumns
	wallet, err := scanWallet(tx.QueryRow(ctx, query, walletID, req.WalletAddress, req.Balance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		if isCheckViolation(err) {
			return nil, ErrNegativeBalance
		}
		return nil, err
	}
	if err := insertAdminLogFor(ctx, tx, audit, wallet.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return wallet, nil
}

func insertCryptoTransaction(ctx context.Context, tx pgx.Tx, entry domain.CryptoTransaction) (*domain.CryptoTransaction, error) {
	query := `
		INSERT INTO crypto_transactions (
			user_id, coin_symbol, amount, usd_value, fee, transaction_type, status, destination_address, reference_number, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING ` + cryptoTransactionColumns
	stored, err := scanCryptoTransaction(tx.QueryRow(ctx, query,
		entry.UserID,
		entry.CoinSymbol,
		entry.Amount,
		entry.USDValue,
		entry.Fee,
		entry.TransactionType,
		entry.Status,
		entry.DestinationAddress,
		entry.ReferenceNumber,
	))
	if err != nil {
		return nil, fmt.Errorf("insert crypto transaction: %w", err)
	}
	return stored, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID, coinSymbol string) (*domain.CryptoWallet, error) {
	wallet, err := scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM crypto_wallets
		WHERE user_id = $1 AND coin_symbol = $2
		FOR UPDATE
	`, userID, coinSymbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return wallet, nil
}

func setWalletBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) (*domain.CryptoWallet, error) {
	wallet, err := scanWallet(tx.QueryRow(ctx, `
		UPDATE crypto_wallets SET balance = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+walletColumns, walletID, balance))
	if err != nil {
		return nil, fmt.Errorf("update wallet balance: %w", err)
	}
	return wallet, nil
}

// CreditCryptoDeposit adds entry.Amount to the user's wallet, creating it with newWalletAddress
// when absent, and records the completed deposit.
func (r *PostgresRepository) CreditCryptoDeposit(ctx context.Context, entry domain.CryptoTransaction, newWalletAddress string, audit *domain.AdminLog) (*domain.CryptoWallet, *domain.CryptoTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO crypto_wallets (user_id, coin_symbol, wallet_address, balance)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id, coin_symbol) DO NOTHING
	`, entry.UserID, entry.CoinSymbol, newWalletAddress)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, nil, ErrProfileNotFound
		}
		return nil, nil, fmt.Errorf("create wallet: %w", err)
	}

	wallet, err := lockWallet(ctx, tx, entry.UserID, entry.CoinSymbol)
	if err != nil {
		return nil, nil, err
	}
	updated, err := setWalletBalance(ctx, tx, wallet.ID, wallet.Balance.Add(entry.Amount))
	if err != nil {
		return nil, nil, err
	}
	stored, err := insertCryptoTransaction(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}
	if err := insertAdminLog(ctx, tx, audit); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return updated, stored, nil
}

// DebitCryptoWithdrawal removes amount plus fee from the user's wallet and records the withdrawal.
func (r *PostgresRepository) DebitCryptoWithdrawal(ctx context.Context, entry domain.CryptoTransaction) (*domain.CryptoWallet, *domain.CryptoTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wallet, err := lockWallet(ctx, tx, entry.UserID, entry.CoinSymbol)
	if err != nil {
		return nil, nil, err
	}
	total := entry.Amount.Add(entry.Fee)
	if wallet.Balance.LessThan(total) {
		return nil, nil, ErrInsufficientCryptoBalance
	}
	updated, err := setWalletBalance(ctx, tx, wallet.ID, wallet.Balance.Sub(total))
	if err != nil {
		return nil, nil, err
	}
	stored, err := insertCryptoTransaction(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return updated, stored, nil
}

// ListCryptoTransactionsByUserID returns a user's latest crypto transactions.
func (r *PostgresRepository) ListCryptoTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CryptoTransaction, error) {
	return r.queryCryptoTransactions(ctx, `
		SELECT `+cryptoTransactionColumns+`
		FROM crypto_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
}

// ListRecentCryptoTransactions returns the latest crypto transactions across all users.
func (r *PostgresRepository) ListRecentCryptoTransactions(ctx context.Context, limit int) ([]domain.CryptoTransaction, error) {
	return r.queryCryptoTransactions(ctx, `
		SELECT `+cryptoTransactionColumns+`
		FROM crypto_transactions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

// GetCryptoTransferFee returns the user's BTC fee, or the default when none is configured.
func (r *PostgresRepository) GetCryptoTransferFee(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT btc_fee FROM crypto_transfer_fees WHERE user_id = $1`, userID).Scan(&fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultBTCTransferFee, nil
		}
		return decimal.Zero, err
	}
	return fee, nil
}

// ListCryptoTransferFees returns every profile with its effective BTC fee.
func (r *PostgresRepository) ListCryptoTransferFees(ctx context.Context) ([]domain.CryptoTransferFee, error) {
	rows, err := r.db.Query(ctx, `
		SELECT f.id, p.id, COALESCE(f.btc_fee, $1::numeric), p.email, p.full_name, f.updated_at
		FROM profiles p
		LEFT JOIN crypto_transfer_fees f ON f.user_id = p.id
		ORDER BY p.created_at DESC
	`, domain.DefaultBTCTransferFee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fees []domain.CryptoTransferFee
	for rows.Next() {
		var fee domain.CryptoTransferFee
		if err := rows.Scan(&fee.ID, &fee.UserID, &fee.BTCFee, &fee.Email, &fee.FullName, &fee.UpdatedAt); err != nil {
			return nil, err
		}
		fees = append(fees, fee)
	}
	return fees, rows.Err()
}

// UpsertCryptoTransferFee sets a user's BTC fee.
func (r *PostgresRepository) UpsertCryptoTransferFee(ctx context.Context, userID uuid.UUID, fee decimal.Decimal, audit *domain.AdminLog) (*domain.CryptoTransferFee, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stored domain.CryptoTransferFee
	err = tx.QueryRow(ctx, `
		INSERT INTO crypto_transfer_fees (user_id, btc_fee, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET btc_fee = EXCLUDED.btc_fee, updated_at = NOW()
		RETURNING id, user_id, btc_fee, updated_at
	`, userID, fee).Scan(&stored.ID, &stored.UserID, &stored.BTCFee, &stored.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("upsert crypto fee: %w", err)
	}
	if err := insertAdminLog(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &stored, nil
}
