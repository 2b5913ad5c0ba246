package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GetPINStatus reports which PIN step the client has to show next.
func (s *Service) GetPINStatus(ctx context.Context, userID uuid.UUID) (*domain.PINStatus, error) {
	credential, err := s.repo.GetUserSecurityCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionPINNotSet) {
			return &domain.PINStatus{State: domain.PINStateSetup}, nil
		}
		return nil, fmt.Errorf("failed to load PIN credential: %w", err)
	}

	status := &domain.PINStatus{
		State:          domain.PINStateVerify,
		HasPIN:         true,
		FailedAttempts: credential.FailedAttempts,
	}
	if credential.IsLocked(s.now()) {
		status.State = domain.PINStateLocked
		status.LockedUntil = credential.LockedUntil
	}
	return status, nil
}

// SetupTransactionPIN creates the first PIN for a user.
func (s *Service) SetupTransactionPIN(ctx context.Context, userID uuid.UUID, req domain.SetupPINRequest) error {
	if !domain.IsValidTransferPIN(req.PIN) {
		return ErrInvalidPINFormat
	}
	if req.PIN != req.ConfirmPIN {
		return ErrPINMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	if err := s.repo.CreateTransactionPIN(ctx, userID, string(hash)); err != nil {
		return err
	}
	log.Printf("level=info component=app flow=pin_setup outcome=created user=%s", userID)
	return nil
}

// ChangeTransactionPIN replaces an existing PIN after verifying the current one.
func (s *Service) ChangeTransactionPIN(ctx context.Context, userID uuid.UUID, req domain.ChangePINRequest) error {
	if !domain.IsValidTransferPIN(req.NewPIN) {
		return ErrInvalidPINFormat
	}
	if req.NewPIN != req.ConfirmPIN {
		return ErrPINMismatch
	}
	if err := s.VerifyTransactionPIN(ctx, userID, req.CurrentPIN); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	if err := s.repo.UpdateTransactionPIN(ctx, userID, string(hash)); err != nil {
		return err
	}
	log.Printf("level=info component=app flow=pin_change outcome=updated user=%s", userID)
	return nil
}

// VerifyTransactionPIN checks pin against the stored hash, enforcing the request limiter
// and the persistent lockout. A successful check clears the failure counter.
func (s *Service) VerifyTransactionPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	if s.pinLimiter != nil {
		decision, err := s.pinLimiter.Allow(ctx, userID)
		if err != nil {
			// Fail open: the persistent lockout below still applies.
			log.Printf("level=warn component=app flow=pin_verify outcome=limiter_error user=%s err=%v", userID, err)
		} else if !decision.Allowed {
			s.metrics.ObservePINVerification("rate_limited")
			return &RateLimitError{RetryAfterSeconds: decision.RetryAfterSeconds()}
		}
	}

	credential, err := s.repo.GetUserSecurityCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionPINNotSet) {
			s.metrics.ObservePINVerification("not_set")
			return store.ErrTransactionPINNotSet
		}
		return fmt.Errorf("failed to load PIN credential: %w", err)
	}
	if credential.IsLocked(s.now()) {
		s.metrics.ObservePINVerification("locked")
		return ErrTransactionPINLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(credential.TransactionPINHash), []byte(pin)); err != nil {
		updated, recordErr := s.repo.RecordFailedTransactionPINAttempt(ctx, userID, s.config.PINMaxAttempts, s.config.PINLockoutSeconds)
		if recordErr != nil {
			return fmt.Errorf("failed to record PIN attempt: %w", recordErr)
		}
		if updated.IsLocked(s.now()) {
			log.Printf("level=warn component=app flow=pin_verify outcome=locked user=%s attempts=%d", userID, updated.FailedAttempts)
			s.metrics.ObservePINVerification("locked")
			return ErrTransactionPINLocked
		}
		s.metrics.ObservePINVerification("invalid")
		return ErrInvalidTransactionPIN
	}

	// A concurrent wrong guess may have locked the PIN after it was read above.
	if err := s.repo.ResetTransactionPINFailureState(ctx, userID); err != nil {
		if errors.Is(err, store.ErrTransactionPINLocked) {
			log.Printf("level=warn component=app flow=pin_verify outcome=locked_during_verify user=%s", userID)
			s.metrics.ObservePINVerification("locked")
			return ErrTransactionPINLocked
		}
		log.Printf("level=warn component=app flow=pin_verify outcome=reset_failed user=%s err=%v", userID, err)
	}
	s.metrics.ObservePINVerification("ok")
	return nil
}
