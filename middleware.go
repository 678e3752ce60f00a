package x402gate

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eventpay/x402gate/types"
)

// Header names defined by the x402 protocol.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// ScopeFunc derives the pricing scope from a request, for example an
// event id taken from the path or query string.
type ScopeFunc func(*http.Request) string

// MiddlewareOption configures the net/http middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	scope ScopeFunc
}

// WithScope installs a scope extractor on the middleware.
func WithScope(fn ScopeFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.scope = fn
	}
}

// Middleware wraps a handler so it only runs once payment has settled.
// The resource identifier is "METHOD /path". Unpaid or unacceptable
// requests receive a 402 with a challenge body; only operator
// misconfiguration yields a 500.
func (g *Gate) Middleware(next http.Handler, opts ...MiddlewareOption) http.Handler {
	var cfg middlewareConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := r.Method + " " + r.URL.Path
		scope := ""
		if cfg.scope != nil {
			scope = cfg.scope(r)
		}

		outcome := g.Evaluate(r.Context(), resource, scope, r.Header.Get(HeaderPayment))
		switch {
		case outcome.Err != nil:
			writeServerError(w, outcome.Err)
		case outcome.Granted:
			if outcome.SettlementHeader != "" {
				w.Header().Set(HeaderPaymentResponse, outcome.SettlementHeader)
			}
			next.ServeHTTP(w, r.WithContext(withOutcome(r.Context(), outcome)))
		default:
			writeChallenge(w, outcome.Challenge)
		}
	})
}

// HandlerFunc is the http.HandlerFunc flavor of Middleware.
func (g *Gate) HandlerFunc(next http.HandlerFunc, opts ...MiddlewareOption) http.Handler {
	return g.Middleware(next, opts...)
}

func writeChallenge(w http.ResponseWriter, challenge *types.PaymentRequired) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(challenge)
}

func writeServerError(w http.ResponseWriter, err error) {
	code := types.ErrServerMisconfigured
	message := err.Error()
	var xerr *types.X402Error
	if errors.As(err, &xerr) {
		code = xerr.Code
		message = xerr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "server_misconfigured",
		"code":    code,
		"message": message,
	})
}
