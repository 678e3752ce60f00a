package types

import "errors"

// X402Error is the structured error type used across the module. Code is
// stable and machine-readable; Message is for humans.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *X402Error) Error() string {
	return e.Code + ": " + e.Message
}

// Error codes.
//
// Every payment-protocol failure (malformed header, failed verification,
// failed settlement, unreachable facilitator) collapses to a re-issuable 402
// challenge. Only ErrServerMisconfigured surfaces as a 5xx, because it is not
// the client's fault and not resolvable by paying again.
const (
	ErrInvalidAmountFormat    = "INVALID_AMOUNT_FORMAT"
	ErrMalformedPaymentHeader = "MALFORMED_PAYMENT_HEADER"
	ErrVerificationFailed     = "VERIFICATION_FAILED"
	ErrSettlementFailed       = "SETTLEMENT_FAILED"
	ErrFacilitatorUnavailable = "FACILITATOR_UNAVAILABLE"
	ErrServerMisconfigured    = "SERVER_MISCONFIGURED"
	ErrUnsupportedNetwork     = "UNSUPPORTED_NETWORK"
	ErrUnsupportedScheme      = "UNSUPPORTED_SCHEME"
	ErrUnsupportedVersion     = "UNSUPPORTED_VERSION"
)

// HasCode reports whether err (or anything it wraps) is an X402Error with
// the given code.
func HasCode(err error, code string) bool {
	var xe *X402Error
	return errors.As(err, &xe) && xe.Code == code
}
