package x402gate

import "github.com/eventpay/x402gate/types"

// EventType identifies a gate lifecycle event.
type EventType string

const (
	// EventChallenge fires when a 402 challenge is issued.
	EventChallenge EventType = "challenge"
	// EventVerifyFailed fires when a submitted payment fails
	// facilitator verification or local decoding.
	EventVerifyFailed EventType = "verify_failed"
	// EventSettleFailed fires when a verified payment fails to settle.
	EventSettleFailed EventType = "settle_failed"
	// EventGranted fires when a payment settles and access is granted.
	EventGranted EventType = "granted"
)

// Event carries the context of a gate lifecycle event to observers.
type Event struct {
	Type     EventType
	Resource string
	Scope    string
	Network  string
	Payer    string
	// Reason holds the failure detail for verify_failed and
	// settle_failed events.
	Reason string
	// Settlement is set on granted events.
	Settlement *types.SettleResponse
}

// EventFunc observes gate lifecycle events. It runs inline on the
// request path, so implementations should hand work off quickly.
type EventFunc func(Event)
