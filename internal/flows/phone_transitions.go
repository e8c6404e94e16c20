package flows

// PhoneState is the state of one phone verification flow.
type PhoneState uint8

const (
	PhoneIdle PhoneState = iota
	PhoneSending
	PhoneSent
	PhoneAutoVerifying
	PhoneConfirming
	PhoneConfirmed
	PhoneFailed
	PhoneExpired
)

func (s PhoneState) String() string {
	switch s {
	case PhoneIdle:
		return "idle"
	case PhoneSending:
		return "sending"
	case PhoneSent:
		return "sent"
	case PhoneAutoVerifying:
		return "auto_verifying"
	case PhoneConfirming:
		return "confirming"
	case PhoneConfirmed:
		return "confirmed"
	case PhoneFailed:
		return "failed"
	case PhoneExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Resolved reports whether s ends the current attempt.
func (s PhoneState) Resolved() bool {
	return s == PhoneConfirmed || s == PhoneFailed || s == PhoneExpired
}

type phoneInput uint8

const (
	inputStart phoneInput = iota
	inputCodeSent
	inputSendFailed
	inputAutoVerified
	inputTimeout
	inputResend
	inputConfirm
	inputConfirmed
	inputInvalidCode
	inputConfirmAborted
	inputCodeExpired
	inputExchangeFailed
)

// phoneTransitions is the complete transition table. Any (state, input) pair that is not
// listed is ignored when it comes from a backend callback and rejected when it comes
// from a caller.
var phoneTransitions = map[PhoneState]map[phoneInput]PhoneState{
	PhoneIdle: {
		inputStart: PhoneSending,
	},
	PhoneSending: {
		inputCodeSent:     PhoneSent,
		inputSendFailed:   PhoneFailed,
		inputAutoVerified: PhoneAutoVerifying,
		inputTimeout:      PhoneExpired,
	},
	PhoneSent: {
		inputConfirm:      PhoneConfirming,
		inputAutoVerified: PhoneAutoVerifying,
		inputResend:       PhoneSending,
		inputSendFailed:   PhoneFailed,
		inputCodeExpired:  PhoneExpired,
	},
	PhoneAutoVerifying: {
		inputConfirmed:      PhoneConfirmed,
		inputExchangeFailed: PhoneFailed,
	},
	PhoneConfirming: {
		inputConfirmed:      PhoneConfirmed,
		inputInvalidCode:    PhoneSent,
		inputConfirmAborted: PhoneSent,
		inputCodeExpired:    PhoneExpired,
		inputExchangeFailed: PhoneFailed,
	},
	PhoneFailed: {
		inputStart: PhoneSending,
	},
	PhoneExpired: {
		inputStart: PhoneSending,
	},
}

func nextPhoneState(from PhoneState, in phoneInput) (PhoneState, bool) {
	next, ok := phoneTransitions[from][in]
	return next, ok
}
