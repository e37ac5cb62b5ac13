package domain

import "time"

// Reply sources distinguish how an operator answered a ticket.
const (
	// ReplySourceTelegram marks replies typed by the operator in the manager chat.
	ReplySourceTelegram = "telegram"
	// ReplySourceDashboard marks replies posted through the admin dashboard.
	ReplySourceDashboard = "dashboard"
)

// Ticket records one request for human operator attention, created when a
// user asks for the manager, cannot find the club, or claims the bonus.
type Ticket struct {
	ID        string    `bson:"id" json:"id"`
	TgID      string    `bson:"tg_id" json:"tg_id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	UserStep  string    `bson:"user_step" json:"user_step"`
	Reason    string    `bson:"reason" json:"reason"`
	Resolved  bool      `bson:"resolved" json:"resolved"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Reply is one operator answer attached to a ticket. Replies are a log, not a
// state gate: a resolved ticket still accepts them.
type Reply struct {
	ID        string    `bson:"id" json:"id"`
	TicketID  string    `bson:"ticket_id" json:"ticket_id"`
	TgID      string    `bson:"tg_id" json:"tg_id"`
	Source    string    `bson:"source" json:"source"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
