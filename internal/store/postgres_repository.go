/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface:
 * the shared sentinel errors, row scanning helpers, and the profile, role and
 * transfer PIN queries. Money movement, transfers, crypto wallets and admin
 * queries live in the sibling postgres_*.go files.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound           = errors.New("profile not found")
	ErrUsernameTaken             = errors.New("username already taken")
	ErrAccountNotFound           = errors.New("account not found")
	ErrNoActiveAccount           = errors.New("no active account found")
	ErrRecipientNoActiveAccount  = errors.New("recipient has no active account")
	ErrSelfTransfer              = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrNegativeBalance           = errors.New("balance cannot be negative")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransferNotFound          = errors.New("transfer not found")
	ErrTransferNotPending        = errors.New("transfer is not pending")
	ErrTransactionPINNotSet      = errors.New("transaction pin not set")
	ErrTransactionPINAlreadySet  = errors.New("transaction pin already set")
	ErrTransactionPINLocked      = errors.New("transaction pin is locked")
	ErrWalletNotFound            = errors.New("wallet not found")
	ErrInsufficientCryptoBalance = errors.New("insufficient crypto balance")
	ErrBillNotFound              = errors.New("bill not found")
	ErrBillAlreadyPaid           = errors.New("bill already paid")
	ErrIdempotencyKeyReused      = errors.New("idempotency key was already used for a different request")
)

const accountNumberAttempts = 5

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

// insertAdminLog writes an audit row inside the caller's transaction. A nil entry is a no-op.
func insertAdminLog(ctx context.Context, tx pgx.Tx, entry *domain.AdminLog) error {
	if entry == nil {
		return nil
	}
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}
	query := `
		INSERT INTO admin_logs (id, admin_id, action_type, target_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	if _, err := tx.Exec(ctx, query, entry.ID, entry.AdminID, entry.ActionType, entry.TargetUserID, details, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert admin log: %w", err)
	}
	return nil
}

// insertAdminLogFor writes entry after defaulting its target to the owner of the mutated row.
func insertAdminLogFor(ctx context.Context, tx pgx.Tx, entry *domain.AdminLog, owner uuid.UUID) error {
	if entry != nil && entry.TargetUserID == nil {
		entry.TargetUserID = &owner
	}
	return insertAdminLog(ctx, tx, entry)
}

const profileColumns = `
	p.id, p.email, p.full_name, p.first_name, p.last_name, p.username, p.phone, p.country,
	p.address, p.date_of_birth::text, p.age, p.profile_picture_url, p.status,
	COALESCE(c.transaction_pin_hash, '') <> '' AS has_transfer_pin,
	p.created_at, p.updated_at
`

const profileFrom = `
	FROM profiles p
	LEFT JOIN user_security_credentials c ON c.user_id = p.id
`

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var profile domain.Profile
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.FullName,
		&profile.FirstName,
		&profile.LastName,
		&profile.Username,
		&profile.Phone,
		&profile.Country,
		&profile.Address,
		&profile.DateOfBirth,
		&profile.Age,
		&profile.ProfilePictureURL,
		&profile.Status,
		&profile.HasTransferPIN,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *PostgresRepository) queryProfile(ctx context.Context, where string, args ...any) (*domain.Profile, error) {
	query := "SELECT " + profileColumns + profileFrom + where
	profile, err := scanProfile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// GetProfile retrieves a profile by id.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return r.queryProfile(ctx, "WHERE p.id = $1", userID)
}

// FindProfileByUsername retrieves a profile by case-insensitive username.
func (r *PostgresRepository) FindProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	return r.queryProfile(ctx, "WHERE p.username IS NOT NULL AND lower(btrim(p.username)) = lower(btrim($1))", username)
}

// FindProfileByAccountNumber retrieves the owner of an account number.
func (r *PostgresRepository) FindProfileByAccountNumber(ctx context.Context, accountNumber string) (*domain.Profile, error) {
	return r.queryProfile(ctx, "WHERE p.id = (SELECT user_id FROM accounts WHERE account_number = btrim($1))", accountNumber)
}

// CreateProfileWithAccount inserts a profile, its default role and its primary account.
// Calling it again for an existing profile returns the stored profile unchanged.
func (r *PostgresRepository) CreateProfileWithAccount(ctx context.Context, profile domain.Profile, account domain.Account) (*domain.Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertProfile := `
		INSERT INTO profiles (id, email, full_name, username, phone, country, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	result, err := tx.Exec(ctx, insertProfile, profile.ID, profile.Email, profile.FullName, profile.Username, profile.Phone, profile.Country, profile.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return r.GetProfile(ctx, profile.ID)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, profile.ID, domain.RoleUser); err != nil {
		return nil, fmt.Errorf("insert user role: %w", err)
	}

	insertAccount := `
		INSERT INTO accounts (id, user_id, account_number, account_type, balance, currency, status, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, NOW())
		ON CONFLICT (account_number) DO NOTHING
	`
	accountNumber := account.AccountNumber
	created := false
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		result, err := tx.Exec(ctx, insertAccount, account.ID, profile.ID, accountNumber, account.AccountType, account.Currency, account.Status)
		if err != nil {
			return nil, fmt.Errorf("insert account: %w", err)
		}
		if result.RowsAffected() == 1 {
			created = true
			break
		}
		accountNumber = domain.NewAccountNumber()
	}
	if !created {
		return nil, errors.New("could not allocate a unique account number")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, profile.ID)
}

// UpdateProfile applies the non-nil fields of req.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest, audit *domain.AdminLog) (*domain.Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE profiles
		SET
			full_name = COALESCE($2, full_name),
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			email = COALESCE($5, email),
			username = COALESCE($6, username),
			phone = COALESCE($7, phone),
			country = COALESCE($8, country),
			address = COALESCE($9, address),
			date_of_birth = COALESCE($10::date, date_of_birth),
			profile_picture_url = COALESCE($11, profile_picture_url),
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query,
		userID,
		req.FullName,
		req.FirstName,
		req.LastName,
		req.Email,
		req.Username,
		req.Phone,
		req.Country,
		req.Address,
		req.DateOfBirth,
		req.ProfilePictureURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrProfileNotFound
	}
	if err := insertAdminLog(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, userID)
}

// UpdateProfileStatus sets the lifecycle status of a profile.
func (r *PostgresRepository) UpdateProfileStatus(ctx context.Context, userID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `UPDATE profiles SET status = $2, updated_at = NOW() WHERE id = $1`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("update profile status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrProfileNotFound
	}
	if err := insertAdminLog(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, userID)
}

// ListProfiles returns all profiles, newest first.
func (r *PostgresRepository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx, "SELECT "+profileColumns+profileFrom+" ORDER BY p.created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}

// CountProfiles returns profile totals grouped by status.
func (r *PostgresRepository) CountProfiles(ctx context.Context) (domain.ProfileCounts, error) {
	var counts domain.ProfileCounts
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'blocked')
		FROM profiles
	`
	err := r.db.QueryRow(ctx, query).Scan(&counts.Total, &counts.Active, &counts.Blocked)
	return counts, err
}

// HasRole reports whether the user holds the given role.
func (r *PostgresRepository) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`, userID, role).Scan(&exists)
	return exists, err
}

// GetUserSecurityCredentialByUserID returns transfer PIN security metadata for a user.
func (r *PostgresRepository) GetUserSecurityCredentialByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `
		SELECT user_id, transaction_pin_hash, failed_attempts, locked_until
		FROM user_security_credentials
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&credential.UserID,
		&credential.TransactionPINHash,
		&credential.FailedAttempts,
		&credential.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionPINNotSet
		}
		return nil, err
	}
	if credential.TransactionPINHash == "" {
		return nil, ErrTransactionPINNotSet
	}

	return &credential, nil
}

// CreateTransactionPIN stores the first PIN hash for a user.
func (r *PostgresRepository) CreateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	query := `
		INSERT INTO user_security_credentials (user_id, transaction_pin_hash, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET transaction_pin_hash = EXCLUDED.transaction_pin_hash, failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE user_security_credentials.transaction_pin_hash = ''
	`
	result, err := r.db.Exec(ctx, query, userID, pinHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionPINAlreadySet
	}
	return nil
}

// UpdateTransactionPIN replaces the PIN hash and clears any failure state.
func (r *PostgresRepository) UpdateTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	query := `
		UPDATE user_security_credentials
		SET transaction_pin_hash = $2, failed_attempts = 0, last_failed_at = NULL, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.Exec(ctx, query, userID, pinHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionPINNotSet
	}
	return nil
}

// RecordFailedTransactionPINAttempt atomically increments failed attempts and applies lockout.
// An expired lockout starts a fresh window at one attempt.
func (r *PostgresRepository) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `
		WITH next AS (
			SELECT
				user_id,
				CASE
					WHEN (locked_until IS NOT NULL AND locked_until <= NOW())
						OR (locked_until IS NULL AND failed_attempts >= $2) THEN 1
					ELSE failed_attempts + 1
				END AS attempts
			FROM user_security_credentials
			WHERE user_id = $1
			FOR UPDATE
		)
		UPDATE user_security_credentials c
		SET
			failed_attempts = next.attempts,
			last_failed_at = NOW(),
			locked_until = CASE WHEN next.attempts >= $2 THEN NOW() + ($3 * INTERVAL '1 second') ELSE NULL END,
			updated_at = NOW()
		FROM next
		WHERE c.user_id = next.user_id
		RETURNING c.user_id, c.transaction_pin_hash, c.failed_attempts, c.locked_until
	`
	err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutDurationSeconds).Scan(
		&credential.UserID,
		&credential.TransactionPINHash,
		&credential.FailedAttempts,
		&credential.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionPINNotSet
		}
		return nil, err
	}

	return &credential, nil
}

// ResetTransactionPINFailureState clears failed-attempt counters after a successful PIN verification.
// A lockout that is still active is left in place and reported as ErrTransactionPINLocked.
func (r *PostgresRepository) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE user_security_credentials
		SET failed_attempts = 0, last_failed_at = NULL, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1 AND (locked_until IS NULL OR locked_until <= NOW())
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_security_credentials WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTransactionPINNotSet
	}
	return ErrTransactionPINLocked
}
