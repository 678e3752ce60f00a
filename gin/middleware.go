// Package gin adapts the payment gate to gin handler chains. It is a
// thin translation layer; all verification and settlement logic lives
// in the root package.
package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/eventpay/x402gate"
)

// Context keys under which payment details are stored on gin.Context.
const (
	SettlementContextKey = "x402gate_settlement"
	PayerContextKey      = "x402gate_payer"
)

// ScopeFunc derives the pricing scope from a gin context, typically a
// path or query parameter such as an event id.
type ScopeFunc func(*gin.Context) string

// Middleware gates every route it is attached to. Unpaid requests are
// aborted with a 402 challenge; settled requests proceed with the
// X-PAYMENT-RESPONSE header set and payment details stored on the
// context.
func Middleware(gate *x402gate.Gate, opts ...Option) gin.HandlerFunc {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		resource := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			resource = c.Request.Method + " " + c.Request.URL.Path
		}
		scope := ""
		if cfg.scope != nil {
			scope = cfg.scope(c)
		}

		outcome := gate.Evaluate(c.Request.Context(), resource, scope, c.GetHeader(x402gate.HeaderPayment))
		switch {
		case outcome.Err != nil:
			c.AbortWithStatusJSON(500, gin.H{
				"error":   "server_misconfigured",
				"message": outcome.Err.Error(),
			})
		case outcome.Granted:
			if outcome.SettlementHeader != "" {
				c.Header(x402gate.HeaderPaymentResponse, outcome.SettlementHeader)
			}
			if outcome.Settlement != nil {
				c.Set(SettlementContextKey, outcome.Settlement)
			}
			if outcome.Payer != "" {
				c.Set(PayerContextKey, outcome.Payer)
			}
			c.Next()
		default:
			c.AbortWithStatusJSON(402, outcome.Challenge)
		}
	}
}

type config struct {
	scope ScopeFunc
}

// Option configures the gin middleware.
type Option func(*config)

// WithScope installs a scope extractor.
func WithScope(fn ScopeFunc) Option {
	return func(c *config) {
		c.scope = fn
	}
}
