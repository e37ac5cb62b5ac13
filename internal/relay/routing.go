// Package relay bridges user conversations and the operator channel in both
// directions: escalations out, operator replies and broadcasts back.
package relay

import "sync"

// PendingReply marks that an operator chat owes a free-text reply for a
// ticket.
type PendingReply struct {
	TicketID   string
	TargetTgID string
}

// RoutingTable holds the transient command-mode flags of the relay, keyed by
// operator chat or user id. State is process-local and lost on restart; an
// in-flight exchange simply restarts with the next message. Arming one mode
// for an operator chat supersedes the other, so stale modes cannot swallow
// unrelated messages.
type RoutingTable struct {
	mu        sync.Mutex
	replies   map[int64]PendingReply
	broadcast map[int64]bool
	composing map[string]bool
}

// NewRoutingTable constructs an empty RoutingTable.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		replies:   make(map[int64]PendingReply),
		broadcast: make(map[int64]bool),
		composing: make(map[string]bool),
	}
}

// ArmReply marks the operator chat as awaiting a reply for the ticket.
func (t *RoutingTable) ArmReply(operatorChat int64, pending PendingReply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.broadcast, operatorChat)
	t.replies[operatorChat] = pending
}

// ConsumeReply takes and clears the pending reply for the operator chat.
func (t *RoutingTable) ConsumeReply(operatorChat int64) (PendingReply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending, ok := t.replies[operatorChat]
	if ok {
		delete(t.replies, operatorChat)
	}
	return pending, ok
}

// ArmBroadcast marks the operator chat as awaiting a broadcast text.
func (t *RoutingTable) ArmBroadcast(operatorChat int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replies, operatorChat)
	t.broadcast[operatorChat] = true
}

// ConsumeBroadcast takes and clears the broadcast flag for the operator chat.
func (t *RoutingTable) ConsumeBroadcast(operatorChat int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	armed := t.broadcast[operatorChat]
	delete(t.broadcast, operatorChat)
	return armed
}

// ArmCompose marks the user as composing a free-text escalation message.
func (t *RoutingTable) ArmCompose(tgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.composing[tgID] = true
}

// ConsumeCompose takes and clears the composing flag for the user.
func (t *RoutingTable) ConsumeCompose(tgID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	armed := t.composing[tgID]
	delete(t.composing, tgID)
	return armed
}

// ClearCompose drops the composing flag, used when a superseding command
// interrupts message composition.
func (t *RoutingTable) ClearCompose(tgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.composing, tgID)
}
