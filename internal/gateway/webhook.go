package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"tg_funnel_bot/internal/domain"
)

// Notification is a provider webhook payload reduced to the fields the bot
// acts on. Providers disagree on field names, so several synonyms are
// accepted for each.
type Notification struct {
	PaymentID string
	InvoiceID string
	Status    string
}

type rawNotification struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Invoice   string `json:"invoice"`
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// ParseNotification decodes a webhook body. The returned notification always
// has a canonical status and at least one of PaymentID/InvoiceID set.
func ParseNotification(body []byte) (Notification, error) {
	var raw rawNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return Notification{}, errors.New("malformed webhook payload")
	}

	status, ok := NormalizeStatus(raw.Status)
	if !ok {
		return Notification{}, errors.New("unknown webhook status")
	}

	n := Notification{
		PaymentID: firstNonEmpty(raw.PaymentID, raw.OrderID),
		InvoiceID: firstNonEmpty(raw.Invoice, raw.InvoiceID),
		Status:    status,
	}
	if n.PaymentID == "" && n.InvoiceID == "" {
		return Notification{}, errors.New("webhook payload has no payment reference")
	}
	return n, nil
}

// NormalizeStatus maps a provider status synonym to the canonical payment
// status.
func NormalizeStatus(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "paid", "completed":
		return domain.PaymentPaid, true
	case "failed", "cancelled", "canceled", "rejected":
		return domain.PaymentCancelled, true
	case "processing", "pending":
		return domain.PaymentProcessing, true
	}
	return "", false
}

// SecretMatches compares a webhook-supplied secret against the configured
// one. Missing configuration or a missing secret never matches.
func SecretMatches(supplied, configured string) bool {
	if supplied == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
