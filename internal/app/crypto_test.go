package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestSendCryptoAppliesBTCFee(t *testing.T) {
	userID := uuid.New()
	repo := newPINRepo(t, userID, "1234")
	repo.btcFee = decimal.RequireFromString("0.0005")
	_, client := newTestRedis(t)

	svc := NewService(repo, nil, testConfig())
	svc.SetPriceService(NewPriceService(client, "heritage", time.Minute, &fakePriceFetcher{snapshot: testSnapshot()}))

	tx, err := svc.SendCrypto(context.Background(), userID, domain.SendCryptoRequest{
		CoinSymbol:         "btc",
		Amount:             decimal.RequireFromString("0.01"),
		DestinationAddress: " bc1qdestination ",
		TransactionPIN:     "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.Fee.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("expected BTC fee, got %s", tx.Fee)
	}
	if !tx.USDValue.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected usd value 600, got %s", tx.USDValue)
	}
	if tx.Status != domain.CryptoTxPending || tx.TransactionType != domain.CryptoTxWithdrawal {
		t.Fatalf("unexpected withdrawal %+v", tx)
	}
	if tx.DestinationAddress == nil || *tx.DestinationAddress != "bc1qdestination" {
		t.Fatalf("expected trimmed destination, got %v", tx.DestinationAddress)
	}
	if !strings.HasPrefix(tx.ReferenceNumber, "WD-") {
		t.Fatalf("unexpected reference %q", tx.ReferenceNumber)
	}
}

func TestSendCryptoNonBTCHasNoFeeAndToleratesMissingPrice(t *testing.T) {
	userID := uuid.New()
	repo := newPINRepo(t, userID, "1234")
	repo.btcFee = decimal.RequireFromString("0.0005")
	svc := NewService(repo, nil, testConfig())

	tx, err := svc.SendCrypto(context.Background(), userID, domain.SendCryptoRequest{
		CoinSymbol:         "ETH",
		Amount:             decimal.NewFromInt(2),
		DestinationAddress: "0xabc",
		TransactionPIN:     "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.Fee.IsZero() || !tx.USDValue.IsZero() {
		t.Fatalf("expected zero fee and value, got fee=%s value=%s", tx.Fee, tx.USDValue)
	}
}

func TestSendCryptoValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.SendCryptoRequest
		wantErr error
	}{
		{name: "unsupported coin", req: domain.SendCryptoRequest{CoinSymbol: "DOGE", Amount: decimal.NewFromInt(1), DestinationAddress: "x", TransactionPIN: "1234"}, wantErr: ErrUnsupportedCoin},
		{name: "zero amount", req: domain.SendCryptoRequest{CoinSymbol: "BTC", DestinationAddress: "x", TransactionPIN: "1234"}, wantErr: ErrInvalidTransferAmount},
		{name: "missing destination", req: domain.SendCryptoRequest{CoinSymbol: "BTC", Amount: decimal.NewFromInt(1), TransactionPIN: "1234"}, wantErr: ErrDestinationRequired},
		{name: "wrong pin", req: domain.SendCryptoRequest{CoinSymbol: "BTC", Amount: decimal.NewFromInt(1), DestinationAddress: "x", TransactionPIN: "9999"}, wantErr: ErrInvalidTransactionPIN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			repo := newPINRepo(t, userID, "1234")
			svc := NewService(repo, nil, testConfig())
			_, err := svc.SendCrypto(context.Background(), userID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.withdrawal != nil {
				t.Fatal("expected no wallet debit")
			}
		})
	}
}

func TestAddCryptoValuesDepositAtCachedPrice(t *testing.T) {
	repo := &serviceRepoStub{}
	_, client := newTestRedis(t)
	prices := NewPriceService(client, "heritage", time.Minute, &fakePriceFetcher{snapshot: testSnapshot()})
	if _, err := prices.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	svc := NewService(repo, nil, testConfig())
	svc.SetPriceService(prices)
	adminID := uuid.New()
	userID := uuid.New()

	tx, err := svc.AddCrypto(context.Background(), adminID, userID, domain.CryptoDepositRequest{
		CoinSymbol: "ETH",
		Amount:     decimal.RequireFromString("1.5"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.USDValue.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("expected usd value 4500, got %s", tx.USDValue)
	}
	if tx.Status != domain.CryptoTxCompleted || tx.TransactionType != domain.CryptoTxDeposit {
		t.Fatalf("unexpected deposit %+v", tx)
	}
	if !strings.HasPrefix(tx.ReferenceNumber, "ADMIN-") {
		t.Fatalf("unexpected reference %q", tx.ReferenceNumber)
	}
	if repo.depositAudit == nil || repo.depositAudit.ActionType != domain.AdminActionCryptoDeposit || *repo.depositAudit.TargetUserID != userID {
		t.Fatalf("unexpected audit %+v", repo.depositAudit)
	}

	var details map[string]string
	if err := json.Unmarshal(repo.depositAudit.Details, &details); err != nil {
		t.Fatalf("failed to decode details: %v", err)
	}
	if details["coin_symbol"] != "ETH" || details["usd_value"] != "4500" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestAddCryptoWithoutPriceRecordsZeroValue(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := NewService(repo, nil, testConfig())

	tx, err := svc.AddCrypto(context.Background(), uuid.New(), uuid.New(), domain.CryptoDepositRequest{
		CoinSymbol: "SOL",
		Amount:     decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.USDValue.IsZero() {
		t.Fatalf("expected zero usd value, got %s", tx.USDValue)
	}
}
