/**
 * @description
 * This file contains the event handler run by the notifier. It consumes the debit and
 * credit alerts published after committed balance movements and forwards them to the
 * alert-delivery endpoint.
 *
 * @notes
 * - Returning true acknowledges the delivery; false requeues it. Malformed messages and
 *   permanent endpoint rejections are acknowledged so they cannot loop.
 */
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/agent-support/projectheritag/pkg/alertclient"
)

const alertDeliveryTimeout = 15 * time.Second

// AlertSender delivers one alert.
type AlertSender interface {
	SendAlert(ctx context.Context, event domain.AlertEvent) error
}

// AlertEventHandler handles alert deliveries pulled from the broker.
type AlertEventHandler struct {
	sender  AlertSender
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAlertEventHandler creates a new instance of AlertEventHandler.
func NewAlertEventHandler(sender AlertSender, m *metrics.Metrics, logger *slog.Logger) *AlertEventHandler {
	return &AlertEventHandler{sender: sender, metrics: m, logger: logger}
}

// HandleAlert processes one alert message.
func (h *AlertEventHandler) HandleAlert(body []byte) bool {
	var event domain.AlertEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("failed to decode alert event; acking", "error", err)
		return true
	}
	if event.Email == "" {
		h.logger.Warn("alert event missing email; acking", "kind", event.Kind, "transaction_id", event.TransactionID)
		h.metrics.ObserveAlertDelivery(event.Kind, "dropped")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertDeliveryTimeout)
	defer cancel()

	if err := h.sender.SendAlert(ctx, event); err != nil {
		if alertclient.IsPermanent(err) {
			h.logger.Error("alert rejected by delivery endpoint; acking", "kind", event.Kind, "transaction_id", event.TransactionID, "error", err)
			h.metrics.ObserveAlertDelivery(event.Kind, "rejected")
			return true
		}
		h.logger.Warn("alert delivery failed; requeueing", "kind", event.Kind, "transaction_id", event.TransactionID, "error", err)
		h.metrics.ObserveAlertDelivery(event.Kind, "retry")
		return false
	}

	h.logger.Info("alert delivered", "kind", event.Kind, "transaction_id", event.TransactionID)
	h.metrics.ObserveAlertDelivery(event.Kind, "ok")
	return true
}

// Bindings maps the alert routing keys to the handler.
func (h *AlertEventHandler) Bindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		domain.AlertDebitRoutingKey:  h.HandleAlert,
		domain.AlertCreditRoutingKey: h.HandleAlert,
	}
}
