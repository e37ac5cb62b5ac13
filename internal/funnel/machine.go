package funnel

import (
	"strconv"
	"strings"

	"tg_funnel_bot/internal/domain"
)

// Prompt names the screen the dispatcher should render after a transition.
type Prompt string

// Prompts produced by transitions.
const (
	PromptNone         Prompt = ""
	PromptHome         Prompt = "home"
	PromptInstall      Prompt = "install"
	PromptClub         Prompt = "club"
	PromptBonus        Prompt = "bonus"
	PromptAmount       Prompt = "amount"
	PromptCustomAmount Prompt = "custom_amount"
	PromptPlayerID     Prompt = "player_id"
	PromptPay          Prompt = "pay"
	PromptBadAmount    Prompt = "bad_amount"
	PromptBadPlayerID  Prompt = "bad_player_id"
	PromptClubHelpAck  Prompt = "club_help_ack"
	PromptBonusAck     Prompt = "bonus_ack"
)

// Escalation reasons attached to tickets raised by funnel transitions.
const (
	ReasonClubNotFound = "Could not find the club"
	ReasonBonusClaim   = "Bonus claim request"
)

// Outcome describes the side effects of an applied transition. The state
// machine never performs them itself; the caller does.
type Outcome struct {
	Prompt           Prompt
	EscalationReason string
	// CreateIntent asks the caller to open a payment intent from the
	// session's pending amount and player reference.
	CreateIntent bool
}

type rule struct {
	kind   Kind
	guard  func(s domain.Session, ev Event) bool
	effect func(s *domain.Session, ev Event) Outcome
}

// Machine applies the funnel transition table. It is stateless and safe for
// concurrent use; sessions are passed by value and returned mutated.
type Machine struct {
	rules []rule
}

func anyState(domain.Session, Event) bool { return true }

// NewMachine builds the machine with the funnel transition table. Guards are
// deliberately permissive where the product loosened them: advancing past the
// install step is allowed straight from home, and joining the club is
// accepted from either of the first two steps.
func NewMachine() *Machine {
	return &Machine{rules: []rule{
		{
			kind:  KindStart,
			guard: anyState,
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepHome
				clearPayment(s)
				return Outcome{Prompt: PromptHome}
			},
		},
		{
			kind:  KindGoHome,
			guard: anyState,
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepHome
				clearPayment(s)
				return Outcome{Prompt: PromptHome}
			},
		},
		{
			kind:  KindBeginFunnel,
			guard: anyState,
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepInstall
				return Outcome{Prompt: PromptInstall}
			},
		},
		{
			kind: KindAdvanceInstall,
			guard: func(s domain.Session, _ Event) bool {
				return s.Step == domain.StepHome || s.Step == domain.StepInstall
			},
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepClub
				return Outcome{Prompt: PromptClub}
			},
		},
		{
			kind: KindAdvanceClub,
			guard: func(s domain.Session, _ Event) bool {
				return s.Step == domain.StepInstall || s.Step == domain.StepClub
			},
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepBonus
				return Outcome{Prompt: PromptBonus}
			},
		},
		{
			kind:  KindClubNotFound,
			guard: anyState,
			effect: func(_ *domain.Session, _ Event) Outcome {
				return Outcome{Prompt: PromptClubHelpAck, EscalationReason: ReasonClubNotFound}
			},
		},
		{
			kind:  KindClaimBonus,
			guard: anyState,
			effect: func(s *domain.Session, _ Event) Outcome {
				s.ClaimedBonus = true
				return Outcome{Prompt: PromptBonusAck, EscalationReason: ReasonBonusClaim}
			},
		},
		{
			kind:  KindEnterPayment,
			guard: anyState,
			effect: func(s *domain.Session, _ Event) Outcome {
				s.Step = domain.StepPayment
				s.PaySubStep = domain.SubStepAmount
				return Outcome{Prompt: PromptAmount}
			},
		},
		{
			kind: KindSelectAmount,
			guard: func(s domain.Session, ev Event) bool {
				return s.Step == domain.StepPayment && s.PaySubStep == domain.SubStepAmount && ev.Amount > 0
			},
			effect: func(s *domain.Session, ev Event) Outcome {
				s.PayAmount = ev.Amount
				s.PaySubStep = domain.SubStepPlayerID
				return Outcome{Prompt: PromptPlayerID}
			},
		},
		{
			kind: KindEnterCustomAmount,
			guard: func(s domain.Session, _ Event) bool {
				return s.Step == domain.StepPayment && s.PaySubStep == domain.SubStepAmount
			},
			effect: func(s *domain.Session, _ Event) Outcome {
				s.PaySubStep = domain.SubStepCustomAmount
				return Outcome{Prompt: PromptCustomAmount}
			},
		},
		{
			kind: KindSubmitCustomAmount,
			guard: func(s domain.Session, _ Event) bool {
				return s.Step == domain.StepPayment && s.PaySubStep == domain.SubStepCustomAmount
			},
			effect: func(s *domain.Session, ev Event) Outcome {
				amount, err := strconv.Atoi(strings.TrimSpace(ev.Text))
				if err != nil || amount <= 0 {
					return Outcome{Prompt: PromptBadAmount}
				}
				s.PayAmount = amount
				s.PaySubStep = domain.SubStepPlayerID
				return Outcome{Prompt: PromptPlayerID}
			},
		},
		{
			kind: KindSubmitPlayerRef,
			guard: func(s domain.Session, _ Event) bool {
				return s.Step == domain.StepPayment && s.PaySubStep == domain.SubStepPlayerID
			},
			effect: func(s *domain.Session, ev Event) Outcome {
				player := strings.TrimSpace(ev.Text)
				if player == "" {
					return Outcome{Prompt: PromptBadPlayerID}
				}
				s.PayPlayerID = player
				s.PaySubStep = domain.SubStepPay
				return Outcome{Prompt: PromptPay, CreateIntent: true}
			},
		},
	}}
}

// Apply runs the event against the session. It returns the updated session,
// the outcome to act on, and whether any rule matched. Unmatched or guarded
// events leave the session untouched and report ok=false: replayed buttons
// are a no-op, never an error.
func (m *Machine) Apply(sess domain.Session, ev Event) (domain.Session, Outcome, bool) {
	if m == nil {
		return sess, Outcome{}, false
	}

	for _, r := range m.rules {
		if r.kind != ev.Kind {
			continue
		}
		if !r.guard(sess, ev) {
			return sess, Outcome{}, false
		}
		outcome := r.effect(&sess, ev)
		return sess, outcome, true
	}
	return sess, Outcome{}, false
}

func clearPayment(s *domain.Session) {
	s.PaySubStep = ""
	s.PayAmount = 0
	s.PayPlayerID = ""
}
