package x402gate

import (
	"context"

	"github.com/eventpay/x402gate/types"
)

type contextKey int

const (
	settlementKey contextKey = iota
	paymentKey
	payerKey
)

// withOutcome stores the granted outcome's payment details on the
// request context for the protected handler.
func withOutcome(ctx context.Context, outcome *Outcome) context.Context {
	if outcome.Settlement != nil {
		ctx = context.WithValue(ctx, settlementKey, outcome.Settlement)
	}
	if outcome.Payment != nil {
		ctx = context.WithValue(ctx, paymentKey, outcome.Payment)
	}
	if outcome.Payer != "" {
		ctx = context.WithValue(ctx, payerKey, outcome.Payer)
	}
	return ctx
}

// SettlementFromContext returns the settlement receipt for the current
// request, if the request was paid. Free requests carry none.
func SettlementFromContext(ctx context.Context) (*types.SettleResponse, bool) {
	s, ok := ctx.Value(settlementKey).(*types.SettleResponse)
	return s, ok
}

// PaymentFromContext returns the decoded payment that unlocked the
// current request.
func PaymentFromContext(ctx context.Context) (*types.PaymentPayload, bool) {
	p, ok := ctx.Value(paymentKey).(*types.PaymentPayload)
	return p, ok
}

// PayerFromContext returns the verified paying address for the current
// request.
func PayerFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(payerKey).(string)
	return p, ok
}
