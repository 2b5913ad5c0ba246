package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bill states.
const (
	BillStatusPending = "pending"
	BillStatusPaid    = "paid"
)

// Holding is one position inside a portfolio.
type Holding struct {
	ID                 uuid.UUID       `json:"id"`
	PortfolioID        uuid.UUID       `json:"portfolio_id"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	Quantity           decimal.Decimal `json:"quantity"`
	PurchasePrice      decimal.Decimal `json:"purchase_price"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	TotalValue         decimal.Decimal `json:"total_value"`
	GainLoss           decimal.Decimal `json:"gain_loss"`
	GainLossPercentage decimal.Decimal `json:"gain_loss_percentage"`
}

// Recalculate derives value and gain figures from quantity and prices.
func (h *Holding) Recalculate() {
	h.TotalValue = h.Quantity.Mul(h.CurrentPrice)
	cost := h.Quantity.Mul(h.PurchasePrice)
	h.GainLoss = h.TotalValue.Sub(cost)
	if cost.IsZero() {
		h.GainLossPercentage = decimal.Zero
		return
	}
	h.GainLossPercentage = h.GainLoss.Div(cost).Mul(decimal.NewFromInt(100)).Round(2)
}

// Portfolio groups holdings for a user.
type Portfolio struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Name               string          `json:"name"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalGainLoss      decimal.Decimal `json:"total_gain_loss"`
	GainLossPercentage decimal.Decimal `json:"gain_loss_percentage"`
	Holdings           []Holding       `json:"holdings"`
}

// Recalculate refreshes every holding and the portfolio totals.
func (p *Portfolio) Recalculate() {
	total := decimal.Zero
	gain := decimal.Zero
	for i := range p.Holdings {
		p.Holdings[i].Recalculate()
		total = total.Add(p.Holdings[i].TotalValue)
		gain = gain.Add(p.Holdings[i].GainLoss)
	}
	p.TotalValue = total
	p.TotalGainLoss = gain
	cost := total.Sub(gain)
	if cost.IsZero() {
		p.GainLossPercentage = decimal.Zero
		return
	}
	p.GainLossPercentage = gain.Div(cost).Mul(decimal.NewFromInt(100)).Round(2)
}

// Bill is a payable item shown on the dashboard. Amount is in cents.
type Bill struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	BillerName    string     `json:"biller_name"`
	AccountNumber string     `json:"account_number"`
	Amount        int64      `json:"amount"`
	Category      *string    `json:"category,omitempty"`
	DueDate       time.Time  `json:"due_date"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Dashboard aggregates the customer landing view.
type Dashboard struct {
	Profile            *Profile      `json:"profile"`
	Accounts           []Account     `json:"accounts"`
	TotalBalance       int64         `json:"total_balance"`
	RecentTransactions []Transaction `json:"recent_transactions"`
	Portfolios         []Portfolio   `json:"portfolios"`
	PendingBills       []Bill        `json:"pending_bills"`
}
