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

// SubmitTransfer validates and PIN-gates a wire-style transfer, then debits the sender and
// records the pending transfer in one repository call. The boolean reports an idempotent replay.
func (s *Service) SubmitTransfer(ctx context.Context, userID uuid.UUID, req domain.TransferRequest, idempotencyKey string) (*domain.TransferReceipt, bool, error) {
	req.Normalize()
	if err := validateTransferRequest(req); err != nil {
		return nil, false, err
	}
	if err := s.VerifyTransactionPIN(ctx, userID, req.TransactionPIN); err != nil {
		return nil, false, err
	}

	transfer := domain.Transfer{
		UserID:           userID,
		RecipientName:    req.RecipientName,
		RecipientAccount: req.RecipientAccount,
		Amount:           req.Amount,
		TransferType:     req.TransferType,
		ReferenceNumber:  domain.NewTransferReference(s.now()),
		Status:           domain.TransferStatusPending,
	}
	if req.RecipientBank != "" {
		bank := req.RecipientBank
		transfer.RecipientBank = &bank
	}
	if req.RecipientCountry != "" {
		country := req.RecipientCountry
		transfer.RecipientCountry = &country
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		transfer.IdempotencyKey = &key
	}

	description := fmt.Sprintf("Transfer to %s", req.RecipientName)
	stored, replayed, err := s.repo.CreateTransferWithDebit(ctx, transfer, description)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			s.metrics.ObserveTransfer(req.TransferType, "insufficient_funds")
			return nil, false, s.insufficientFunds(ctx, userID, req.Amount)
		}
		s.metrics.ObserveTransfer(req.TransferType, "error")
		return nil, false, fmt.Errorf("failed to create transfer: %w", err)
	}

	if replayed {
		log.Printf("level=info component=app flow=transfer outcome=replayed user=%s reference=%s", userID, stored.ReferenceNumber)
		s.metrics.ObserveTransfer(req.TransferType, "replayed")
	} else {
		log.Printf("level=info component=app flow=transfer outcome=pending user=%s reference=%s amount=%d type=%s", userID, stored.ReferenceNumber, stored.Amount, stored.TransferType)
		s.metrics.ObserveTransfer(req.TransferType, "ok")
	}

	receipt := domain.NewTransferReceipt(stored)
	return &receipt, replayed, nil
}

// ListTransfers returns the user's transfer requests, newest first.
func (s *Service) ListTransfers(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error) {
	return s.repo.ListTransfersByUserID(ctx, userID)
}

func validateTransferRequest(req domain.TransferRequest) error {
	if req.RecipientName == "" || req.RecipientAccount == "" {
		return ErrMissingRecipient
	}
	if req.Amount <= 0 {
		return ErrInvalidTransferAmount
	}
	switch req.TransferType {
	case domain.TransferTypeLocal:
	case domain.TransferTypeInternational:
		if req.RecipientCountry == "" {
			return ErrCountryRequired
		}
	default:
		return ErrInvalidTransferType
	}
	return nil
}

// insufficientFunds builds the customer-facing shortfall error from the funding account balance.
func (s *Service) insufficientFunds(ctx context.Context, userID uuid.UUID, required int64) error {
	accounts, err := s.repo.ListAccountsByUserID(ctx, userID)
	if err != nil {
		return store.ErrInsufficientFunds
	}
	var available int64
	for _, account := range accounts {
		if account.Status == domain.AccountStatusActive && account.Balance > available {
			available = account.Balance
		}
	}
	return &InsufficientFundsError{Required: required, Available: available}
}
