package funnel

import "testing"

func TestDecodeCallback(t *testing.T) {
	tests := []struct {
		data   string
		want   Event
		wantOK bool
	}{
		{"go_home", Event{Kind: KindGoHome}, true},
		{"go_step1", Event{Kind: KindBeginFunnel}, true},
		{"installed_app", Event{Kind: KindAdvanceInstall}, true},
		{"joined_club", Event{Kind: KindAdvanceClub}, true},
		{"club_not_found", Event{Kind: KindClubNotFound}, true},
		{"claim_bonus", Event{Kind: KindClaimBonus}, true},
		{"go_payment", Event{Kind: KindEnterPayment}, true},
		{"custom_amount", Event{Kind: KindEnterCustomAmount}, true},
		{"manager", Event{Kind: KindAskManager}, true},
		{"rules", Event{Kind: KindShowRules}, true},
		{"amount_500", Event{Kind: KindSelectAmount, Amount: 500}, true},
		{"amount_1", Event{Kind: KindSelectAmount, Amount: 1}, true},
		{"amount_abc", Event{}, false},
		{"amount_-5", Event{}, false},
		{"amount_", Event{}, false},
		{"check_payment_abc-123", Event{Kind: KindCheckPayment, PaymentID: "abc-123"}, true},
		{"check_payment_", Event{}, false},
		{"something_else", Event{}, false},
		{"", Event{}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.data, func(t *testing.T) {
			got, ok := DecodeCallback(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("DecodeCallback(%q) ok = %v, want %v", tt.data, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("DecodeCallback(%q) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	ev, ok := DecodeCallback(AmountCallback(2000))
	if !ok || ev.Kind != KindSelectAmount || ev.Amount != 2000 {
		t.Fatalf("expected amount callback to round-trip, got ok=%v %+v", ok, ev)
	}

	ev, ok = DecodeCallback(CheckPaymentCallback("pay-1"))
	if !ok || ev.Kind != KindCheckPayment || ev.PaymentID != "pay-1" {
		t.Fatalf("expected check payment callback to round-trip, got ok=%v %+v", ok, ev)
	}
}
