package types

import "errors"

// Kind classifies an engine error for callers that need to react to the
// category rather than the specific condition (e.g. the HTTP layer).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindStateConflict
	KindExternal
	KindProof
	KindExhausted
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindAuthorization:
		return "AUTHORIZATION"
	case KindStateConflict:
		return "STATE_CONFLICT"
	case KindExternal:
		return "EXTERNAL_CALL_FAILURE"
	case KindProof:
		return "PROOF"
	case KindExhausted:
		return "EXHAUSTED_CLAIM"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is a sentinel engine error. Compare with errors.Is.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func register(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// Engine sentinel errors.
var (
	ErrInvalidRotationPeriod = register(KindValidation, "invalid_rotation_period", "rotation period must be positive")
	ErrInvalidInterestRate   = register(KindValidation, "invalid_interest_rate", "interest rate must satisfy 0 < numerator <= denominator")
	ErrInvalidParameters     = register(KindValidation, "invalid_parameters", "invalid pot parameters")

	ErrSignatureInvalid  = register(KindAuthorization, "signature_invalid", "authorization signature invalid")
	ErrNotAdministrator  = register(KindAuthorization, "not_administrator", "caller is not the administrator")
	ErrPermitAlreadyUsed = register(KindAuthorization, "permit_already_used", "authorization permit already used")

	ErrPotFull                = register(KindStateConflict, "pot_full", "pot is full")
	ErrAlreadyJoinedThisRound = register(KindStateConflict, "already_joined", "already joined this round")
	ErrRotationNotDue         = register(KindStateConflict, "rotation_not_due", "rotation not yet due")
	ErrNoParticipants         = register(KindStateConflict, "no_participants", "no participants to rotate")
	ErrInsufficientRiskPool   = register(KindStateConflict, "insufficient_risk_pool", "amount exceeds risk pool balance")
	ErrPotExhausted           = register(KindStateConflict, "pot_exhausted", "every participant slot has already won")
	ErrRandomnessPending      = register(KindStateConflict, "randomness_pending", "pending randomness request can still be revealed")

	ErrTransferFailed   = register(KindExternal, "transfer_failed", "value transfer failed")
	ErrInsufficientFee  = register(KindExternal, "insufficient_fee", "randomness fee mismatch")
	ErrRevealMismatch   = register(KindExternal, "reveal_mismatch", "seeds do not match the randomness commitment")
	ErrAlreadyRevealed  = register(KindExternal, "already_revealed", "randomness request already revealed")
	ErrRandomnessFailed = register(KindExternal, "randomness_failed", "randomness service call failed")

	ErrInvalidProof = register(KindProof, "invalid_proof", "merkle proof invalid")

	ErrNothingToClaim     = register(KindExhausted, "nothing_to_claim", "nothing to claim")
	ErrNothingLeftToClaim = register(KindExhausted, "nothing_left_to_claim", "nothing left to claim")
	ErrNoRevenue          = register(KindExhausted, "no_revenue", "no revenue to withdraw")
	ErrNoRandomnessFees   = register(KindExhausted, "no_randomness_fees", "no randomness fees to withdraw")

	ErrPotNotFound = register(KindNotFound, "pot_not_found", "pot not found")
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
