package telegram

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
	"tg_funnel_bot/internal/funnel"
	"tg_funnel_bot/internal/gateway"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/notify"
	"tg_funnel_bot/internal/relay"
)

const (
	commandStart     = "/start"
	commandBroadcast = "/broadcast"
)

type sessionStore interface {
	Ensure(ctx context.Context, tgID, username string) (domain.Session, bool, error)
	SaveFunnel(ctx context.Context, sess domain.Session) error
}

type paymentStore interface {
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	GetByID(ctx context.Context, id string) (domain.Payment, error)
	SetInvoice(ctx context.Context, id, invoiceID string) error
}

type linkResolver interface {
	PaymentLink(ctx context.Context, payment domain.Payment) (gateway.Link, error)
}

type callbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Router turns raw Telegram updates into funnel events and side effects. One
// instance handles all chats.
type Router struct {
	sessions   sessionStore
	payments   paymentStore
	links      linkResolver
	machine    *funnel.Machine
	dispatcher *notify.Dispatcher
	relay      *relay.Relay
	answerer   callbackAnswerer
	logger     *logrus.Entry
}

// NewRouter constructs a Router.
func NewRouter(
	sessions sessionStore,
	payments paymentStore,
	links linkResolver,
	machine *funnel.Machine,
	dispatcher *notify.Dispatcher,
	messageRelay *relay.Relay,
	answerer callbackAnswerer,
	logger *logrus.Entry,
) *Router {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Router{
		sessions:   sessions,
		payments:   payments,
		links:      links,
		machine:    machine,
		dispatcher: dispatcher,
		relay:      messageRelay,
		answerer:   answerer,
		logger:     logger,
	}
}

// Handle dispatches a single update.
func (r *Router) Handle(ctx context.Context, update *models.Update) {
	if r == nil || update == nil {
		return
	}

	switch {
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil {
		return
	}

	chat := chatID(&msg.Chat)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	operatorChat := r.relay.OperatorChatID(ctx)
	if operatorChat != 0 && chat == operatorChat {
		r.handleOperatorMessage(ctx, chat, text)
		return
	}

	tgID := strconv.FormatInt(msg.From.ID, 10)
	sess, created, err := r.sessions.Ensure(ctx, tgID, msg.From.Username)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "session_ensure_failed",
			"tg_id": tgID,
		}).WithError(err).Error("failed to load session")
		return
	}
	if created {
		r.logger.WithFields(logging.Fields{
			"event": "user_registered",
			"tg_id": tgID,
		}).Info("new user entered the funnel")
	}

	if text == commandStart {
		r.relay.Routing().ClearCompose(tgID)
		r.apply(ctx, chat, sess, funnel.Event{Kind: funnel.KindStart})
		return
	}

	if r.relay.Routing().ConsumeCompose(tgID) {
		if _, err := r.relay.Escalate(ctx, sess, text); err != nil {
			r.logger.WithFields(logging.Fields{
				"event": "escalation_failed",
				"tg_id": tgID,
			}).WithError(err).Error("failed to create manager ticket")
			return
		}
		r.sendOrLog(r.dispatcher.ShowManagerAck(ctx, chat), chat)
		return
	}

	switch {
	case sess.Step == domain.StepPayment && sess.PaySubStep == domain.SubStepCustomAmount:
		r.apply(ctx, chat, sess, funnel.Event{Kind: funnel.KindSubmitCustomAmount, Text: text})
	case sess.Step == domain.StepPayment && sess.PaySubStep == domain.SubStepPlayerID:
		r.apply(ctx, chat, sess, funnel.Event{Kind: funnel.KindSubmitPlayerRef, Text: text})
	default:
		r.logger.WithFields(logging.Fields{
			"event": "text_ignored",
			"tg_id": tgID,
			"step":  sess.Step,
		}).Debug("free text outside an input step")
	}
}

func (r *Router) handleOperatorMessage(ctx context.Context, chat int64, text string) {
	if text == commandBroadcast {
		r.relay.ArmBroadcast(chat)
		r.sendOrLog(r.dispatcher.ShowBroadcastPrompt(ctx, chat), chat)
		return
	}
	if strings.HasPrefix(text, "/") {
		return
	}

	handled, err := r.relay.HandleOperatorText(ctx, chat, text)
	if err != nil {
		r.logger.WithField("event", "operator_text_failed").WithError(err).Error("failed to route operator message")
		return
	}
	if !handled {
		r.logger.WithField("event", "operator_text_ignored").Debug("operator message without armed routing state")
	}
}

func (r *Router) handleCallback(ctx context.Context, query *models.CallbackQuery) {
	if _, err := r.answerer.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		r.logger.WithField("event", "callback_answer_failed").WithError(err).Warn("failed to acknowledge callback")
	}

	chat := messageChatID(query.Message)
	if chat == 0 {
		chat = query.From.ID
	}

	operatorChat := r.relay.OperatorChatID(ctx)
	if ticketID, ok := relay.DecodeReplyCallback(query.Data); ok {
		if operatorChat == 0 || chat != operatorChat {
			return
		}
		ticket, err := r.relay.BeginReply(ctx, chat, ticketID)
		if err != nil {
			r.logger.WithFields(logging.Fields{
				"event":     "reply_begin_failed",
				"ticket_id": ticketID,
			}).WithError(err).Error("failed to arm operator reply")
			return
		}
		r.sendOrLog(r.dispatcher.ShowReplyPrompt(ctx, chat, ticket), chat)
		return
	}

	tgID := strconv.FormatInt(query.From.ID, 10)
	sess, _, err := r.sessions.Ensure(ctx, tgID, query.From.Username)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "session_ensure_failed",
			"tg_id": tgID,
		}).WithError(err).Error("failed to load session")
		return
	}

	ev, ok := funnel.DecodeCallback(query.Data)
	if !ok {
		r.logger.WithFields(logging.Fields{
			"event": "callback_unknown",
			"data":  query.Data,
		}).Debug("unknown callback payload ignored")
		return
	}

	switch ev.Kind {
	case funnel.KindAskManager:
		r.relay.Routing().ArmCompose(tgID)
		r.sendOrLog(r.dispatcher.ShowManagerPrompt(ctx, chat), chat)
	case funnel.KindShowRules:
		r.sendOrLog(r.dispatcher.ShowRules(ctx, chat), chat)
	case funnel.KindCheckPayment:
		r.checkPayment(ctx, chat, ev.PaymentID)
	default:
		r.relay.Routing().ClearCompose(tgID)
		r.apply(ctx, chat, sess, ev)
	}
}

// apply runs a funnel event through the machine and performs the outcome:
// persist the session, raise an escalation, open a payment intent, render the
// next screen. Events the machine rejects are dropped silently; a replayed
// button must not disturb the session.
func (r *Router) apply(ctx context.Context, chat int64, sess domain.Session, ev funnel.Event) {
	next, outcome, ok := r.machine.Apply(sess, ev)
	if !ok {
		r.logger.WithFields(logging.Fields{
			"event": "transition_rejected",
			"tg_id": sess.TgID,
			"step":  sess.Step,
			"kind":  ev.Kind,
		}).Debug("event not legal for session state")
		return
	}

	if err := r.sessions.SaveFunnel(ctx, next); err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "session_save_failed",
			"tg_id": next.TgID,
		}).WithError(err).Error("failed to persist session")
		return
	}

	if outcome.EscalationReason != "" {
		if _, err := r.relay.Escalate(ctx, next, outcome.EscalationReason); err != nil {
			r.logger.WithFields(logging.Fields{
				"event": "escalation_failed",
				"tg_id": next.TgID,
			}).WithError(err).Error("failed to create manager ticket")
		}
	}

	if outcome.CreateIntent {
		r.openPayment(ctx, chat, next)
		return
	}

	r.sendOrLog(r.dispatcher.Prompt(ctx, chat, outcome.Prompt, next), chat)
}

// openPayment creates the payment intent and resolves a payable link for it.
// When no gateway path is configured the user gets an apology and the manager
// a ticket with the order details.
func (r *Router) openPayment(ctx context.Context, chat int64, sess domain.Session) {
	payment, err := r.payments.Create(ctx, domain.Payment{
		TgID:     sess.TgID,
		Amount:   sess.PayAmount,
		PlayerID: sess.PayPlayerID,
	})
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event": "payment_create_failed",
			"tg_id": sess.TgID,
		}).WithError(err).Error("failed to create payment")
		return
	}

	link, err := r.links.PaymentLink(ctx, payment)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotConfigured) {
			r.logger.WithFields(logging.Fields{
				"event":      "payment_link_failed",
				"payment_id": payment.ID,
			}).WithError(err).Error("failed to resolve payment link")
		}
		r.sendOrLog(r.dispatcher.ShowPaymentUnavailable(ctx, chat), chat)
		reason := fmt.Sprintf("Top-up request without payment link: amount %d, player %s", payment.Amount, payment.PlayerID)
		if _, escErr := r.relay.Escalate(ctx, sess, reason); escErr != nil {
			r.logger.WithFields(logging.Fields{
				"event":      "escalation_failed",
				"payment_id": payment.ID,
			}).WithError(escErr).Error("failed to create manager ticket")
		}
		return
	}

	if link.InvoiceID != "" {
		if err := r.payments.SetInvoice(ctx, payment.ID, link.InvoiceID); err != nil {
			r.logger.WithFields(logging.Fields{
				"event":      "invoice_save_failed",
				"payment_id": payment.ID,
			}).WithError(err).Warn("failed to record invoice id")
		}
	}

	r.sendOrLog(r.dispatcher.ShowPay(ctx, chat, payment, link.URL), chat)
}

func (r *Router) checkPayment(ctx context.Context, chat int64, paymentID string) {
	payment, err := r.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.sendOrLog(r.dispatcher.ShowPaymentNotFound(ctx, chat), chat)
			return
		}
		r.logger.WithFields(logging.Fields{
			"event":      "payment_lookup_failed",
			"payment_id": paymentID,
		}).WithError(err).Error("failed to load payment")
		return
	}

	r.sendOrLog(r.dispatcher.ShowPaymentStatus(ctx, chat, payment), chat)
}

func (r *Router) sendOrLog(err error, chat int64) {
	if err == nil {
		return
	}
	r.logger.WithFields(logging.Fields{
		"event":   "send_failed",
		"chat_id": chat,
	}).WithError(err).Error("failed to send telegram message")
}
