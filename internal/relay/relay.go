package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/settings"
)

const replyCallbackPrefix = "reply_"

type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type ticketStore interface {
	Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error)
	Get(ctx context.Context, id string) (domain.Ticket, error)
	Resolve(ctx context.Context, id string) error
}

type replyStore interface {
	Append(ctx context.Context, reply domain.Reply) (domain.Reply, error)
}

type sessionLister interface {
	All(ctx context.Context) ([]domain.Session, error)
}

type settingsSource interface {
	Value(ctx context.Context, key, fallback string) string
}

// Relay routes escalations to the operator channel and operator messages
// back to users.
type Relay struct {
	messenger messenger
	tickets   ticketStore
	replies   replyStore
	sessions  sessionLister
	settings  settingsSource
	routing   *RoutingTable
	logger    *logrus.Entry
}

// NewRelay constructs a Relay.
func NewRelay(m messenger, tickets ticketStore, replies replyStore, sessions sessionLister, src settingsSource, logger *logrus.Entry) *Relay {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Relay{
		messenger: m,
		tickets:   tickets,
		replies:   replies,
		sessions:  sessions,
		settings:  src,
		routing:   NewRoutingTable(),
		logger:    logger,
	}
}

// Routing exposes the relay's ephemeral routing table.
func (r *Relay) Routing() *RoutingTable {
	return r.routing
}

// OperatorChatID resolves the configured operator channel, or 0 when none is
// set.
func (r *Relay) OperatorChatID(ctx context.Context) int64 {
	raw := r.settings.Value(ctx, settings.KeyManagerChatID, "")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "bad_manager_chat_id",
			"value": raw,
		}).Warn("manager chat id is not numeric")
		return 0
	}
	return id
}

// Escalate persists a ticket and notifies the operator channel with a reply
// affordance. A missing or unreachable operator channel degrades gracefully:
// the ticket is still stored and visible on the dashboard.
func (r *Relay) Escalate(ctx context.Context, sess domain.Session, reason string) (domain.Ticket, error) {
	if r == nil || r.tickets == nil {
		return domain.Ticket{}, errors.New("relay is not initialized")
	}
	if ctx == nil {
		return domain.Ticket{}, errors.New("context is required")
	}

	ticket, err := r.tickets.Create(ctx, domain.Ticket{
		TgID:     sess.TgID,
		Username: sess.Username,
		UserStep: sess.Step,
		Reason:   reason,
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	operatorChat := r.OperatorChatID(ctx)
	if operatorChat == 0 {
		r.logger.WithFields(logging.Fields{
			"event":     "operator_chat_unset",
			"ticket_id": ticket.ID,
		}).Warn("operator chat is not configured, ticket stored without notification")
		return ticket, nil
	}

	username := ticket.Username
	if username == "" {
		username = "unknown"
	}
	text := "New user request\n\n" +
		"ID: " + ticket.TgID + "\n" +
		"Username: @" + username + "\n" +
		"Step: " + ticket.UserStep + "\n" +
		"Reason: " + ticket.Reason

	_, err = r.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: operatorChat,
		Text:   text,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Reply", CallbackData: replyCallbackPrefix + ticket.ID}},
			},
		},
	})
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event":     "operator_notify_failed",
			"ticket_id": ticket.ID,
		}).WithError(err).Warn("failed to notify operator channel")
	}

	return ticket, nil
}

// DecodeReplyCallback extracts the ticket id from a reply-trigger callback
// payload.
func DecodeReplyCallback(data string) (string, bool) {
	id, ok := strings.CutPrefix(data, replyCallbackPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// BeginReply arms the routing state: the next free-text message from the
// operator chat answers the given ticket.
func (r *Relay) BeginReply(ctx context.Context, operatorChat int64, ticketID string) (domain.Ticket, error) {
	if r == nil || r.tickets == nil {
		return domain.Ticket{}, errors.New("relay is not initialized")
	}
	if ctx == nil {
		return domain.Ticket{}, errors.New("context is required")
	}

	ticket, err := r.tickets.Get(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("lookup ticket: %w", err)
	}

	r.routing.ArmReply(operatorChat, PendingReply{
		TicketID:   ticket.ID,
		TargetTgID: ticket.TgID,
	})
	return ticket, nil
}

// HandleOperatorText consumes armed routing state for the operator chat. It
// reports whether the text was taken as a broadcast or a pending reply; an
// unrelated operator message is left alone.
func (r *Relay) HandleOperatorText(ctx context.Context, operatorChat int64, text string) (bool, error) {
	if r == nil {
		return false, errors.New("relay is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	if r.routing.ConsumeBroadcast(operatorChat) {
		sent, failed := r.broadcast(ctx, text)
		summary := fmt.Sprintf("Broadcast finished: sent %d, failed %d", sent, failed)
		if _, err := r.messenger.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: operatorChat,
			Text:   summary,
		}); err != nil {
			r.logger.WithField("event", "broadcast_summary_failed").WithError(err).Warn("failed to report broadcast summary")
		}
		return true, nil
	}

	pending, ok := r.routing.ConsumeReply(operatorChat)
	if !ok {
		return false, nil
	}

	if _, err := r.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: pending.TargetTgID,
		Text:   text,
	}); err != nil {
		return true, fmt.Errorf("deliver operator reply: %w", err)
	}

	if _, err := r.replies.Append(ctx, domain.Reply{
		TicketID: pending.TicketID,
		TgID:     pending.TargetTgID,
		Source:   domain.ReplySourceTelegram,
		Text:     text,
	}); err != nil {
		return true, fmt.Errorf("record operator reply: %w", err)
	}

	return true, nil
}

// DashboardReply sends a reply from the admin dashboard to the user and logs
// it on the ticket. No routing state is involved; the dashboard addresses the
// ticket explicitly.
func (r *Relay) DashboardReply(ctx context.Context, ticketID, text string) (domain.Reply, error) {
	if r == nil || r.tickets == nil || r.replies == nil {
		return domain.Reply{}, errors.New("relay is not initialized")
	}
	if ctx == nil {
		return domain.Reply{}, errors.New("context is required")
	}
	if strings.TrimSpace(text) == "" {
		return domain.Reply{}, errors.New("reply text is required")
	}

	ticket, err := r.tickets.Get(ctx, ticketID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("lookup ticket: %w", err)
	}

	reply, err := r.replies.Append(ctx, domain.Reply{
		TicketID: ticket.ID,
		TgID:     ticket.TgID,
		Source:   domain.ReplySourceDashboard,
		Text:     text,
	})
	if err != nil {
		return domain.Reply{}, fmt.Errorf("record dashboard reply: %w", err)
	}

	if _, err := r.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: ticket.TgID,
		Text:   text,
	}); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":     "dashboard_reply_send_failed",
			"ticket_id": ticket.ID,
		}).WithError(err).Warn("failed to deliver dashboard reply")
	}

	return reply, nil
}

// NotifyOperator pushes an informational message to the operator channel.
// Nothing happens when the channel is not configured.
func (r *Relay) NotifyOperator(ctx context.Context, text string) {
	operatorChat := r.OperatorChatID(ctx)
	if operatorChat == 0 {
		return
	}

	if _, err := r.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: operatorChat,
		Text:   text,
	}); err != nil {
		r.logger.WithField("event", "operator_notify_failed").WithError(err).Warn("failed to notify operator channel")
	}
}

// ArmBroadcast puts the operator chat into broadcast mode; the next free-text
// message from it goes to every known user.
func (r *Relay) ArmBroadcast(operatorChat int64) {
	r.routing.ArmBroadcast(operatorChat)
}

// broadcast sends the text to every known session sequentially. Failures on
// individual recipients (blocked bot, dead chat) are counted and skipped.
func (r *Relay) broadcast(ctx context.Context, text string) (sent, failed int) {
	sessions, err := r.sessions.All(ctx)
	if err != nil {
		r.logger.WithField("event", "broadcast_list_failed").WithError(err).Error("failed to list broadcast recipients")
		return 0, 0
	}

	for _, sess := range sessions {
		if _, err := r.messenger.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.TgID,
			Text:   text,
		}); err != nil {
			failed++
			r.logger.WithFields(logging.Fields{
				"event": "broadcast_send_failed",
				"tg_id": sess.TgID,
			}).WithError(err).Debug("broadcast recipient skipped")
			continue
		}
		sent++
	}

	r.logger.WithFields(logging.Fields{
		"event":  "broadcast_done",
		"sent":   sent,
		"failed": failed,
	}).Info("broadcast finished")
	return sent, failed
}

// Resolve marks a ticket resolved; resolving twice is harmless.
func (r *Relay) Resolve(ctx context.Context, ticketID string) error {
	if r == nil || r.tickets == nil {
		return errors.New("relay is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return r.tickets.Resolve(ctx, ticketID)
}
