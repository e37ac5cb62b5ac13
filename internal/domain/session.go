// Package domain defines the funnel's persistent types and their repositories.
package domain

import "time"

// Funnel steps a user moves through, in order. PAYMENT is re-entrant and can
// be entered from any step.
const (
	StepHome    = "HOME"
	StepInstall = "STEP_1"
	StepClub    = "STEP_2"
	StepBonus   = "STEP_3"
	StepPayment = "PAYMENT"
)

// Payment sub-steps, meaningful only while the session step is PAYMENT.
const (
	SubStepAmount       = "amount"
	SubStepCustomAmount = "custom_amount"
	SubStepPlayerID     = "player_id"
	SubStepPay          = "pay"
)

// Session tracks one Telegram user's position in the onboarding funnel.
// PaySubStep is non-empty only while Step is PAYMENT; returning home clears
// it together with the pending payment fields.
type Session struct {
	TgID         string    `bson:"tg_id" json:"tg_id"`
	Username     string    `bson:"username,omitempty" json:"username,omitempty"`
	Step         string    `bson:"step" json:"step"`
	ClaimedBonus bool      `bson:"claimed_bonus" json:"claimed_bonus"`
	PaySubStep   string    `bson:"pay_sub_step,omitempty" json:"pay_sub_step,omitempty"`
	PayAmount    int       `bson:"pay_amount,omitempty" json:"pay_amount,omitempty"`
	PayPlayerID  string    `bson:"pay_player_id,omitempty" json:"pay_player_id,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// ValidStep reports whether the value is one of the known funnel steps.
func ValidStep(step string) bool {
	switch step {
	case StepHome, StepInstall, StepClub, StepBonus, StepPayment:
		return true
	}
	return false
}
