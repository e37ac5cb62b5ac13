package domain

import "time"

// Payment statuses. Paid and cancelled are terminal: once reached, neither a
// provider webhook nor a dashboard action may move the payment further.
// Pending and processing may oscillate while the provider settles.
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentPaid       = "paid"
	PaymentCancelled  = "cancelled"
)

// Payment is one tracked attempt to collect an amount for a player reference.
// InvoiceID carries the provider's correlation reference when the gateway
// returned one.
type Payment struct {
	ID        string    `bson:"id" json:"id"`
	TgID      string    `bson:"tg_id" json:"tg_id"`
	PlayerID  string    `bson:"player_id" json:"player_id"`
	Amount    int       `bson:"amount" json:"amount"`
	Status    string    `bson:"status" json:"status"`
	InvoiceID string    `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ValidPaymentStatus reports whether the value is a known payment status.
func ValidPaymentStatus(status string) bool {
	switch status {
	case PaymentPending, PaymentProcessing, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

// TerminalPaymentStatus reports whether the status admits no further
// transitions.
func TerminalPaymentStatus(status string) bool {
	return status == PaymentPaid || status == PaymentCancelled
}
