package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Crypto transaction types and states.
const (
	CryptoTxDeposit    = "deposit"
	CryptoTxWithdrawal = "withdrawal"

	CryptoTxPending   = "pending"
	CryptoTxCompleted = "completed"
	CryptoTxFailed    = "failed"
)

// DefaultBTCTransferFee applies to users without a crypto_transfer_fees row.
var DefaultBTCTransferFee = decimal.RequireFromString("0.0001")

// Coin is a supported crypto asset and its id on the price feed.
type Coin struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	FeedID string `json:"feed_id"`
}

// SupportedCoins lists the assets the wallet simulator accepts.
var SupportedCoins = []Coin{
	{Symbol: "BTC", Name: "Bitcoin", FeedID: "bitcoin"},
	{Symbol: "ETH", Name: "Ethereum", FeedID: "ethereum"},
	{Symbol: "USDT", Name: "Tether (BNB)", FeedID: "tether"},
	{Symbol: "USDT_ERC20", Name: "Tether (ERC20)", FeedID: "tether"},
	{Symbol: "USDT_TRC20", Name: "Tether (TRC20)", FeedID: "tether"},
	{Symbol: "SOL", Name: "Solana", FeedID: "solana"},
	{Symbol: "XRP", Name: "Ripple", FeedID: "ripple"},
	{Symbol: "BNB", Name: "BNB", FeedID: "binancecoin"},
	{Symbol: "PI", Name: "Pi Network", FeedID: "pi-network"},
}

// FindCoin looks up a supported coin by symbol, case-insensitively.
func FindCoin(symbol string) (Coin, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	for _, coin := range SupportedCoins {
		if coin.Symbol == normalized {
			return coin, true
		}
	}
	return Coin{}, false
}

// CoinFeedIDs returns the distinct, sorted feed ids of all supported coins.
func CoinFeedIDs() []string {
	seen := make(map[string]struct{}, len(SupportedCoins))
	ids := make([]string, 0, len(SupportedCoins))
	for _, coin := range SupportedCoins {
		if _, ok := seen[coin.FeedID]; ok {
			continue
		}
		seen[coin.FeedID] = struct{}{}
		ids = append(ids, coin.FeedID)
	}
	sort.Strings(ids)
	return ids
}

// CoinPrice is a USD quote keyed by feed id.
type CoinPrice struct {
	USD          decimal.Decimal `json:"usd"`
	USD24hChange decimal.Decimal `json:"usd_24h_change"`
}

// PriceSnapshot is the cached result of one price-feed poll.
type PriceSnapshot struct {
	Prices    map[string]CoinPrice `json:"prices"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// PriceForSymbol resolves a coin symbol to its feed quote.
func (s *PriceSnapshot) PriceForSymbol(symbol string) (CoinPrice, bool) {
	if s == nil {
		return CoinPrice{}, false
	}
	coin, ok := FindCoin(symbol)
	if !ok {
		return CoinPrice{}, false
	}
	price, ok := s.Prices[coin.FeedID]
	return price, ok
}

// CoinQuote is the per-symbol price view returned to clients.
type CoinQuote struct {
	Coin
	USD          decimal.Decimal `json:"usd"`
	USD24hChange decimal.Decimal `json:"usd_24h_change"`
}

// Quotes expands a snapshot into one quote per supported coin, in listing order.
func (s *PriceSnapshot) Quotes() []CoinQuote {
	quotes := make([]CoinQuote, 0, len(SupportedCoins))
	for _, coin := range SupportedCoins {
		quote := CoinQuote{Coin: coin}
		if s != nil {
			if price, ok := s.Prices[coin.FeedID]; ok {
				quote.USD = price.USD
				quote.USD24hChange = price.USD24hChange
			}
		}
		quotes = append(quotes, quote)
	}
	return quotes
}

// CryptoWallet is a per-profile, per-coin balance and address.
type CryptoWallet struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	CoinSymbol    string          `json:"coin_symbol"`
	WalletAddress string          `json:"wallet_address"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ValuedWallet pairs a wallet with its USD valuation at the current cached price.
type ValuedWallet struct {
	CryptoWallet
	USDPrice decimal.Decimal `json:"usd_price"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// CryptoTransaction logs a crypto move with its USD valuation snapshot.
type CryptoTransaction struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	CoinSymbol         string          `json:"coin_symbol"`
	Amount             decimal.Decimal `json:"amount"`
	USDValue           decimal.Decimal `json:"usd_value"`
	Fee                decimal.Decimal `json:"fee"`
	TransactionType    string          `json:"transaction_type"`
	Status             string          `json:"status"`
	DestinationAddress *string         `json:"destination_address,omitempty"`
	ReferenceNumber    string          `json:"reference_number"`
	CreatedAt          time.Time       `json:"created_at"`
}

// CryptoTransferFee is a per-user BTC network fee override.
type CryptoTransferFee struct {
	ID        *uuid.UUID      `json:"id,omitempty"`
	UserID    uuid.UUID       `json:"user_id"`
	BTCFee    decimal.Decimal `json:"btc_fee"`
	Email     string          `json:"email,omitempty"`
	FullName  string          `json:"full_name,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// SendCryptoRequest is the DTO for a PIN-gated crypto withdrawal.
type SendCryptoRequest struct {
	CoinSymbol         string          `json:"coin_symbol"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destination_address"`
	TransactionPIN     string          `json:"transaction_pin"`
}

// CryptoDepositRequest is the admin DTO for crediting a user's wallet.
type CryptoDepositRequest struct {
	CoinSymbol string          `json:"coin_symbol"`
	Amount     decimal.Decimal `json:"amount"`
}

// WalletUpdateRequest is the admin DTO for editing a wallet row.
type WalletUpdateRequest struct {
	WalletAddress *string          `json:"wallet_address,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
}

// NewWalletAddress builds the simulated address assigned to a new wallet.
func NewWalletAddress(symbol string, now time.Time) string {
	return fmt.Sprintf("%s-%d", strings.ToUpper(symbol), now.UnixMilli())
}

// NewCryptoReference builds a withdrawal reference.
func NewCryptoReference(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, now.UnixMilli())
}
