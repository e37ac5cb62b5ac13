// Package notify renders and sends every outbound bot message: funnel
// prompts, payment screens, and acknowledgements, each with the inline
// keyboard for that state.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/funnel"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/settings"
)

// FixedAmounts are the preset top-up amounts offered on the amount picker.
var FixedAmounts = []int{100, 200, 500, 1000, 2000, 5000}

// Default texts used when the corresponding setting is absent.
const (
	defaultWelcomeText = "Welcome! Choose an action:"
	defaultStep1Text   = "Step 1: Install the app\n\nPick your platform and install the app:"
	defaultStep2Text   = "Step 2: Join the club\n\nFind the club by its ID and join."
	defaultBonusText   = "Step 3: Bonus\n\nCongratulations! You can claim a registration bonus.\n\nTap the button below to claim it."
	defaultRulesText   = "Rules:\n\n1. Install the app\n2. Join the club\n3. Claim the bonus\n4. Top up your balance"
)

type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
}

type settingsSource interface {
	Value(ctx context.Context, key, fallback string) string
}

// Dispatcher sends the bot's outbound messages.
type Dispatcher struct {
	messenger messenger
	settings  settingsSource
	uploadDir string
	logger    *logrus.Entry
}

// NewDispatcher constructs a Dispatcher. uploadDir is the root for locally
// stored media referenced from settings.
func NewDispatcher(m messenger, src settingsSource, uploadDir string, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Dispatcher{
		messenger: m,
		settings:  src,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Prompt renders the screen named by a funnel outcome. Screens that need
// payment context (the pay screen) are sent through ShowPay instead.
func (d *Dispatcher) Prompt(ctx context.Context, chatID int64, prompt funnel.Prompt, sess domain.Session) error {
	switch prompt {
	case funnel.PromptHome:
		return d.ShowHome(ctx, chatID)
	case funnel.PromptInstall:
		return d.ShowInstall(ctx, chatID)
	case funnel.PromptClub:
		return d.ShowClub(ctx, chatID)
	case funnel.PromptBonus:
		return d.ShowBonus(ctx, chatID)
	case funnel.PromptAmount:
		return d.ShowAmountPicker(ctx, chatID)
	case funnel.PromptCustomAmount:
		return d.send(ctx, chatID, "Enter the top-up amount (a number):", nil)
	case funnel.PromptPlayerID:
		return d.send(ctx, chatID, fmt.Sprintf("Amount: %d\n\nEnter your Player ID:", sess.PayAmount), nil)
	case funnel.PromptBadAmount:
		return d.send(ctx, chatID, "Please enter a valid amount (a positive number):", nil)
	case funnel.PromptBadPlayerID:
		return d.send(ctx, chatID, "Please enter a valid Player ID:", nil)
	case funnel.PromptClubHelpAck:
		return d.send(ctx, chatID, "The manager will help you find the club. Please wait!", nil)
	case funnel.PromptBonusAck:
		return d.send(ctx, chatID, "Your bonus request is in! The manager will contact you.", nil)
	case funnel.PromptNone:
		return nil
	}
	return nil
}

// ShowHome renders the home screen.
func (d *Dispatcher) ShowHome(ctx context.Context, chatID int64) error {
	text := d.settings.Value(ctx, settings.KeyWelcomeText, defaultWelcomeText)
	return d.send(ctx, chatID, text, &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Start", CallbackData: "go_step1"}},
			{{Text: "Top up", CallbackData: "go_payment"}},
			{{Text: "Manager 24/7", CallbackData: "manager"}},
			{{Text: "Rules", CallbackData: "rules"}},
		},
	})
}

// ShowInstall renders the install step: optional intro media, then the
// platform links.
func (d *Dispatcher) ShowInstall(ctx context.Context, chatID int64) error {
	text := d.settings.Value(ctx, settings.KeyStep1Text, defaultStep1Text)
	media := d.settings.Value(ctx, settings.KeyStep1Video, "")
	if err := d.sendWithMedia(ctx, chatID, media, text, nil); err != nil {
		return err
	}

	android := d.settings.Value(ctx, settings.KeyAndroidLink, "https://example.com/android")
	ios := d.settings.Value(ctx, settings.KeyIOSLink, "https://example.com/ios")
	windows := d.settings.Value(ctx, settings.KeyWindowsLink, "https://example.com/windows")

	return d.send(ctx, chatID, "Choose your platform:", &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Android", URL: android},
				{Text: "iOS", URL: ios},
				{Text: "Windows", URL: windows},
			},
			{{Text: "I installed the app", CallbackData: "installed_app"}},
			{{Text: "Manager 24/7", CallbackData: "manager"}},
		},
	})
}

// ShowClub renders the club step with the configured club id.
func (d *Dispatcher) ShowClub(ctx context.Context, chatID int64) error {
	clubID := d.settings.Value(ctx, settings.KeyClubID, "not configured")
	text := d.settings.Value(ctx, settings.KeyStep2Text, defaultStep2Text)
	text = fmt.Sprintf("%s\n\nClub ID: %s", text, clubID)
	media := d.settings.Value(ctx, settings.KeyStep2Video, "")
	if err := d.sendWithMedia(ctx, chatID, media, text, nil); err != nil {
		return err
	}

	return d.send(ctx, chatID, "Choose an action:", &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "I'm in the club", CallbackData: "joined_club"}},
			{{Text: "Can't find the club", CallbackData: "club_not_found"}},
			{{Text: "Manager 24/7", CallbackData: "manager"}},
		},
	})
}

// ShowBonus renders the bonus step.
func (d *Dispatcher) ShowBonus(ctx context.Context, chatID int64) error {
	text := d.settings.Value(ctx, settings.KeyBonusText, defaultBonusText)
	return d.send(ctx, chatID, text, &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Claim bonus", CallbackData: "claim_bonus"}},
			{{Text: "Top up", CallbackData: "go_payment"}},
			{{Text: "Manager 24/7", CallbackData: "manager"}},
			{
				{Text: "Rules", CallbackData: "rules"},
				{Text: "Home", CallbackData: "go_home"},
			},
		},
	})
}

// ShowAmountPicker renders the fixed amount grid plus manual entry.
func (d *Dispatcher) ShowAmountPicker(ctx context.Context, chatID int64) error {
	var rows [][]models.InlineKeyboardButton
	half := len(FixedAmounts) / 2
	rows = append(rows, amountRow(FixedAmounts[:half]), amountRow(FixedAmounts[half:]))
	rows = append(rows,
		[]models.InlineKeyboardButton{{Text: "Enter manually", CallbackData: "custom_amount"}},
		[]models.InlineKeyboardButton{{Text: "Manager 24/7", CallbackData: "manager"}},
		[]models.InlineKeyboardButton{{Text: "Home", CallbackData: "go_home"}},
	)

	return d.send(ctx, chatID, "Choose a top-up amount:", &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	})
}

func amountRow(amounts []int) []models.InlineKeyboardButton {
	row := make([]models.InlineKeyboardButton, 0, len(amounts))
	for _, a := range amounts {
		row = append(row, models.InlineKeyboardButton{
			Text:         fmt.Sprintf("%d", a),
			CallbackData: funnel.AmountCallback(a),
		})
	}
	return row
}

// ShowPay renders the final payment screen with the resolved payable link.
func (d *Dispatcher) ShowPay(ctx context.Context, chatID int64, payment domain.Payment, payURL string) error {
	text := fmt.Sprintf("Payment\n\nAmount: %d\nPlayer ID: %s\n\nTap the button below to pay:",
		payment.Amount, payment.PlayerID)
	return d.send(ctx, chatID, text, &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Pay", URL: payURL}},
			{{Text: "Check payment", CallbackData: funnel.CheckPaymentCallback(payment.ID)}},
			{{Text: "Manager 24/7", CallbackData: "manager"}},
			{{Text: "Home", CallbackData: "go_home"}},
		},
	})
}

// ShowPaymentUnavailable tells the user the payment system is not set up yet.
func (d *Dispatcher) ShowPaymentUnavailable(ctx context.Context, chatID int64) error {
	return d.send(ctx, chatID,
		"The payment system is not set up yet. The manager has been notified and will help you shortly.", nil)
}

// ShowPaymentStatus answers a payment status check.
func (d *Dispatcher) ShowPaymentStatus(ctx context.Context, chatID int64, payment domain.Payment) error {
	switch payment.Status {
	case domain.PaymentPaid:
		return d.send(ctx, chatID,
			fmt.Sprintf("Payment confirmed!\n\nAmount: %d\nPlayer ID: %s", payment.Amount, payment.PlayerID), nil)
	case domain.PaymentCancelled:
		return d.send(ctx, chatID, "Payment cancelled. Please try again.", &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Top up", CallbackData: "go_payment"}},
				{{Text: "Home", CallbackData: "go_home"}},
			},
		})
	default:
		return d.send(ctx, chatID, "Payment is processing. Check again in a moment.", &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Check again", CallbackData: funnel.CheckPaymentCallback(payment.ID)}},
				{{Text: "Manager 24/7", CallbackData: "manager"}},
			},
		})
	}
}

// ShowPaymentNotFound answers a status check for an unknown payment.
func (d *Dispatcher) ShowPaymentNotFound(ctx context.Context, chatID int64) error {
	return d.send(ctx, chatID, "Payment not found", nil)
}

// ShowRules renders the rules screen.
func (d *Dispatcher) ShowRules(ctx context.Context, chatID int64) error {
	text := d.settings.Value(ctx, settings.KeyRulesText, defaultRulesText)
	return d.send(ctx, chatID, text, &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Home", CallbackData: "go_home"}},
		},
	})
}

// ShowManagerPrompt asks the user to describe their problem for the manager.
func (d *Dispatcher) ShowManagerPrompt(ctx context.Context, chatID int64) error {
	return d.send(ctx, chatID,
		"Describe your question in one message and the manager will get back to you.", nil)
}

// ShowReplyPrompt tells the operator chat whose ticket the next message
// answers.
func (d *Dispatcher) ShowReplyPrompt(ctx context.Context, chatID int64, ticket domain.Ticket) error {
	username := ticket.Username
	if username == "" {
		username = ticket.TgID
	}
	return d.send(ctx, chatID, fmt.Sprintf("Replying to @%s. Send your message:", username), nil)
}

// ShowBroadcastPrompt asks the operator chat for the broadcast text.
func (d *Dispatcher) ShowBroadcastPrompt(ctx context.Context, chatID int64) error {
	return d.send(ctx, chatID, "Send the broadcast text. It will go to every known user.", nil)
}

// ShowManagerAck confirms that the escalation reached the manager.
func (d *Dispatcher) ShowManagerAck(ctx context.Context, chatID int64) error {
	return d.send(ctx, chatID, "The manager will write to you soon. Please wait!", nil)
}

// NotifyPaymentStatus pushes a paid/cancelled notification to the user after
// a webhook or dashboard update. Send failures are logged, not returned; the
// status change already happened.
func (d *Dispatcher) NotifyPaymentStatus(ctx context.Context, tgID string, payment domain.Payment) {
	var text string
	switch payment.Status {
	case domain.PaymentPaid:
		text = fmt.Sprintf("Payment confirmed!\n\nAmount: %d\nPlayer ID: %s", payment.Amount, payment.PlayerID)
	case domain.PaymentCancelled:
		text = "Payment cancelled.\n\nUse /start to return to the main menu."
	default:
		return
	}

	if _, err := d.messenger.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: tgID,
		Text:   text,
	}); err != nil {
		d.logger.WithFields(logging.Fields{
			"event":      "payment_notify_failed",
			"tg_id":      tgID,
			"payment_id": payment.ID,
		}).WithError(err).Warn("failed to notify user about payment status")
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) error {
	if d == nil || d.messenger == nil {
		return errors.New("dispatcher is not initialized")
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := d.messenger.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
