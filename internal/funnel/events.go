// Package funnel owns the onboarding state machine: which inbound events are
// legal for a session and what they change. Transitions live in one explicit
// table instead of being scattered across handlers.
package funnel

import (
	"strconv"
	"strings"
)

// Kind identifies a decoded inbound event.
type Kind string

// Event kinds. Callback payloads are decoded once at the boundary into these
// tagged events; nothing deeper in the flow parses strings.
const (
	KindStart              Kind = "start"
	KindBeginFunnel        Kind = "begin_funnel"
	KindAdvanceInstall     Kind = "advance_install"
	KindAdvanceClub        Kind = "advance_club"
	KindClubNotFound       Kind = "club_not_found"
	KindClaimBonus         Kind = "claim_bonus"
	KindEnterPayment       Kind = "enter_payment"
	KindSelectAmount       Kind = "select_amount"
	KindEnterCustomAmount  Kind = "enter_custom_amount"
	KindSubmitCustomAmount Kind = "submit_custom_amount"
	KindSubmitPlayerRef    Kind = "submit_player_ref"
	KindCheckPayment       Kind = "check_payment"
	KindGoHome             Kind = "go_home"
	KindAskManager         Kind = "ask_manager"
	KindShowRules          Kind = "show_rules"
)

// Event is an inbound user action with its typed parameters.
type Event struct {
	Kind      Kind
	Amount    int    // set for select_amount
	Text      string // set for free-text submissions
	PaymentID string // set for check_payment
}

// Callback data values sent with inline keyboard buttons.
const (
	cbStart        = "go_home"
	cbBeginFunnel  = "go_step1"
	cbInstalled    = "installed_app"
	cbJoinedClub   = "joined_club"
	cbClubNotFound = "club_not_found"
	cbClaimBonus   = "claim_bonus"
	cbPayment      = "go_payment"
	cbCustomAmount = "custom_amount"
	cbManager      = "manager"
	cbRules        = "rules"

	cbAmountPrefix       = "amount_"
	cbCheckPaymentPrefix = "check_payment_"
)

// DecodeCallback maps a callback payload to a typed event. Unknown payloads
// are reported as not matched and are ignored by the caller.
func DecodeCallback(data string) (Event, bool) {
	switch data {
	case cbStart:
		return Event{Kind: KindGoHome}, true
	case cbBeginFunnel:
		return Event{Kind: KindBeginFunnel}, true
	case cbInstalled:
		return Event{Kind: KindAdvanceInstall}, true
	case cbJoinedClub:
		return Event{Kind: KindAdvanceClub}, true
	case cbClubNotFound:
		return Event{Kind: KindClubNotFound}, true
	case cbClaimBonus:
		return Event{Kind: KindClaimBonus}, true
	case cbPayment:
		return Event{Kind: KindEnterPayment}, true
	case cbCustomAmount:
		return Event{Kind: KindEnterCustomAmount}, true
	case cbManager:
		return Event{Kind: KindAskManager}, true
	case cbRules:
		return Event{Kind: KindShowRules}, true
	}

	if raw, ok := strings.CutPrefix(data, cbAmountPrefix); ok {
		amount, err := strconv.Atoi(raw)
		if err != nil || amount <= 0 {
			return Event{}, false
		}
		return Event{Kind: KindSelectAmount, Amount: amount}, true
	}

	if id, ok := strings.CutPrefix(data, cbCheckPaymentPrefix); ok {
		if id == "" {
			return Event{}, false
		}
		return Event{Kind: KindCheckPayment, PaymentID: id}, true
	}

	return Event{}, false
}

// AmountCallback renders the callback payload for a fixed amount button.
func AmountCallback(amount int) string {
	return cbAmountPrefix + strconv.Itoa(amount)
}

// CheckPaymentCallback renders the callback payload for a payment status
// check button.
func CheckPaymentCallback(paymentID string) string {
	return cbCheckPaymentPrefix + paymentID
}
