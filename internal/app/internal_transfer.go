package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/google/uuid"
)

// ExecuteInternalTransfer moves money from the caller to another customer identified by
// username or account number. The debit and credit commit together; alerts follow best-effort.
func (s *Service) ExecuteInternalTransfer(ctx context.Context, senderID uuid.UUID, req domain.InternalTransferRequest, idempotencyKey string) (*domain.InternalTransferReceipt, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidTransferAmount
	}
	identifier := strings.TrimSpace(req.RecipientIdentifier)
	if identifier == "" {
		return nil, ErrRecipientNotFound
	}
	if err := s.VerifyTransactionPIN(ctx, senderID, req.TransactionPIN); err != nil {
		return nil, err
	}

	recipient, err := s.resolveRecipient(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, ErrSelfTransfer
	}

	sender, err := s.repo.GetProfile(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender profile: %w", err)
	}

	params := domain.InternalTransferParams{
		SenderID:          senderID,
		RecipientID:       recipient.ID,
		Amount:            req.Amount,
		Reference:         domain.NewInternalTransactionID(s.now()),
		DebitDescription:  fmt.Sprintf("Transfer to %s", recipient.DisplayName()),
		CreditDescription: fmt.Sprintf("Transfer from %s", sender.DisplayName()),
		SenderName:        sender.DisplayName(),
		RecipientName:     recipient.DisplayName(),
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.IdempotencyKey = &key
	}

	result, err := s.repo.ExecuteInternalTransfer(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			s.metrics.ObserveTransfer("internal", "insufficient_funds")
			return nil, s.insufficientFunds(ctx, senderID, req.Amount)
		case errors.Is(err, store.ErrSelfTransfer):
			return nil, ErrSelfTransfer
		case errors.Is(err, store.ErrIdempotencyKeyReused):
			s.metrics.ObserveTransfer("internal", "key_conflict")
			return nil, err
		}
		s.metrics.ObserveTransfer("internal", "error")
		return nil, fmt.Errorf("failed to execute internal transfer: %w", err)
	}

	receipt := &domain.InternalTransferReceipt{
		RecipientName: recipient.DisplayName(),
		Amount:        result.Amount,
		TransactionID: result.Reference,
		Date:          result.CreatedAt,
		NewBalance:    result.SenderAccount.Balance,
		Currency:      result.SenderAccount.Currency,
	}

	if result.Replayed {
		if result.RecipientName != "" {
			receipt.RecipientName = result.RecipientName
		}
		log.Printf("level=info component=app flow=internal_transfer outcome=replayed sender=%s tx=%s", senderID, result.Reference)
		s.metrics.ObserveTransfer("internal", "replayed")
		return receipt, nil
	}

	log.Printf("level=info component=app flow=internal_transfer outcome=completed sender=%s recipient=%s tx=%s amount=%d", senderID, recipient.ID, result.Reference, result.Amount)
	s.metrics.ObserveTransfer("internal", "ok")

	s.publishAlert(ctx, domain.AlertEvent{
		Kind:             domain.AlertKindDebit,
		Email:            sender.Email,
		Name:             sender.DisplayName(),
		CounterpartyName: recipient.DisplayName(),
		Amount:           result.Amount,
		Currency:         result.SenderAccount.Currency,
		CurrentBalance:   result.SenderAccount.Balance,
		TransactionID:    result.Reference,
		Timestamp:        result.CreatedAt,
	})
	s.publishAlert(ctx, domain.AlertEvent{
		Kind:             domain.AlertKindCredit,
		Email:            recipient.Email,
		Name:             recipient.DisplayName(),
		CounterpartyName: sender.DisplayName(),
		Amount:           result.Amount,
		Currency:         result.RecipientAccount.Currency,
		CurrentBalance:   result.RecipientAccount.Balance,
		TransactionID:    result.Reference,
		Timestamp:        result.CreatedAt,
	})

	return receipt, nil
}

// resolveRecipient looks the identifier up as a username first, then as an account number.
func (s *Service) resolveRecipient(ctx context.Context, identifier string) (*domain.Profile, error) {
	profile, err := s.repo.FindProfileByUsername(ctx, identifier)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to look up recipient by username: %w", err)
	}

	profile, err = s.repo.FindProfileByAccountNumber(ctx, identifier)
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, store.ErrProfileNotFound) {
		return nil, ErrRecipientNotFound
	}
	return nil, fmt.Errorf("failed to look up recipient by account number: %w", err)
}
