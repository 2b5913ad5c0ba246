package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultCryptoHistoryLimit = 50

// PriceBoard is the quote list shown on the crypto page.
type PriceBoard struct {
	Coins     []domain.CoinQuote `json:"coins"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// GetCryptoPrices returns the cached quote of every supported coin.
func (s *Service) GetCryptoPrices(ctx context.Context) (*PriceBoard, error) {
	snapshot, err := s.prices.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &PriceBoard{Coins: snapshot.Quotes(), FetchedAt: snapshot.FetchedAt}, nil
}

// RefreshPrices polls the feed into the shared cache outside the scheduler cadence.
func (s *Service) RefreshPrices(ctx context.Context) (*PriceBoard, error) {
	if s.prices == nil {
		return nil, ErrPriceUnavailable
	}
	snapshot, err := s.prices.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	return &PriceBoard{Coins: snapshot.Quotes(), FetchedAt: snapshot.FetchedAt}, nil
}

// ListWallets returns the caller's wallets valued at the cached USD price. Wallets are still
// returned, unvalued, when no price snapshot is available.
func (s *Service) ListWallets(ctx context.Context, userID uuid.UUID) ([]domain.ValuedWallet, error) {
	wallets, err := s.repo.ListWalletsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	snapshot, err := s.prices.Current(ctx)
	if err != nil {
		log.Printf("level=warn component=app flow=wallets outcome=unpriced user=%s err=%v", userID, err)
	}

	valued := make([]domain.ValuedWallet, 0, len(wallets))
	for _, wallet := range wallets {
		entry := domain.ValuedWallet{CryptoWallet: wallet}
		if price, ok := snapshot.PriceForSymbol(wallet.CoinSymbol); ok {
			entry.USDPrice = price.USD
			entry.USDValue = wallet.Balance.Mul(price.USD).Round(2)
		}
		valued = append(valued, entry)
	}
	return valued, nil
}

// ReceiveAddress returns the caller's deposit address for symbol, creating the wallet on first use.
func (s *Service) ReceiveAddress(ctx context.Context, userID uuid.UUID, symbol string) (*domain.CryptoWallet, error) {
	coin, ok := domain.FindCoin(symbol)
	if !ok {
		return nil, ErrUnsupportedCoin
	}
	return s.repo.FindOrCreateWallet(ctx, userID, coin.Symbol, domain.NewWalletAddress(coin.Symbol, s.now()))
}

// ListCryptoTransactions returns the caller's latest crypto transactions.
func (s *Service) ListCryptoTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CryptoTransaction, error) {
	return s.repo.ListCryptoTransactionsByUserID(ctx, userID, clampLimit(limit, defaultCryptoHistoryLimit, maxHistoryLimit))
}

// SendCrypto debits amount plus the network fee from the caller's wallet and records a pending
// withdrawal to the destination address.
func (s *Service) SendCrypto(ctx context.Context, userID uuid.UUID, req domain.SendCryptoRequest) (*domain.CryptoTransaction, error) {
	coin, ok := domain.FindCoin(req.CoinSymbol)
	if !ok {
		return nil, ErrUnsupportedCoin
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidTransferAmount
	}
	destination := strings.TrimSpace(req.DestinationAddress)
	if destination == "" {
		return nil, ErrDestinationRequired
	}
	if err := s.VerifyTransactionPIN(ctx, userID, req.TransactionPIN); err != nil {
		return nil, err
	}

	fee, err := s.withdrawalFee(ctx, userID, coin.Symbol)
	if err != nil {
		return nil, err
	}

	usdValue := decimal.Zero
	if price, err := s.prices.Quote(ctx, coin.Symbol); err == nil {
		usdValue = req.Amount.Mul(price.USD).Round(2)
	} else if !errors.Is(err, ErrPriceUnavailable) {
		return nil, err
	}

	entry := domain.CryptoTransaction{
		UserID:             userID,
		CoinSymbol:         coin.Symbol,
		Amount:             req.Amount,
		USDValue:           usdValue,
		Fee:                fee,
		TransactionType:    domain.CryptoTxWithdrawal,
		Status:             domain.CryptoTxPending,
		DestinationAddress: &destination,
		ReferenceNumber:    domain.NewCryptoReference("WD", s.now()),
	}
	wallet, stored, err := s.repo.DebitCryptoWithdrawal(ctx, entry)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app flow=crypto_send outcome=pending user=%s coin=%s amount=%s fee=%s balance=%s", userID, coin.Symbol, req.Amount, fee, wallet.Balance)
	return stored, nil
}

// withdrawalFee returns the user's BTC fee for BTC withdrawals and zero for every other coin.
func (s *Service) withdrawalFee(ctx context.Context, userID uuid.UUID, symbol string) (decimal.Decimal, error) {
	if symbol != "BTC" {
		return decimal.Zero, nil
	}
	fee, err := s.repo.GetCryptoTransferFee(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transfer fee: %w", err)
	}
	return fee, nil
}
