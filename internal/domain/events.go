package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exchange and routing keys used for best-effort customer alerts.
const (
	EventsExchange        = "heritage.events"
	AlertDebitRoutingKey  = "alert.debit"
	AlertCreditRoutingKey = "alert.credit"

	AlertKindDebit  = "debit"
	AlertKindCredit = "credit"
)

// AlertEvent is published after a committed balance movement and delivered by the notifier.
type AlertEvent struct {
	Kind             string    `json:"kind"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	CounterpartyName string    `json:"counterparty_name"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	CurrentBalance   int64     `json:"current_balance"`
	TransactionID    string    `json:"transaction_id"`
	Timestamp        time.Time `json:"timestamp"`
}

// RoutingKey returns the routing key matching the alert kind.
func (e AlertEvent) RoutingKey() string {
	if e.Kind == AlertKindCredit {
		return AlertCreditRoutingKey
	}
	return AlertDebitRoutingKey
}

// AuditEvent is the streamed form of an admin_logs row.
type AuditEvent struct {
	ID           uuid.UUID       `json:"id"`
	AdminID      uuid.UUID       `json:"admin_id"`
	ActionType   string          `json:"action_type"`
	TargetUserID *uuid.UUID      `json:"target_user_id,omitempty"`
	Details      json.RawMessage `json:"details"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// AuditEventFromLog converts a stored admin log to its streamed form.
func AuditEventFromLog(entry AdminLog) AuditEvent {
	return AuditEvent{
		ID:           entry.ID,
		AdminID:      entry.AdminID,
		ActionType:   entry.ActionType,
		TargetUserID: entry.TargetUserID,
		Details:      entry.Details,
		OccurredAt:   entry.CreatedAt,
	}
}
