// Package x402gate turns HTTP and MCP handlers into payment-gated
// resources using the x402 protocol. Unpaid requests receive a 402
// challenge listing acceptable payments; paid requests are verified
// and settled through a facilitator service before the protected
// handler runs.
package x402gate

import (
	"context"
	"fmt"
	"time"

	"github.com/eventpay/x402gate/encoding"
	"github.com/eventpay/x402gate/facilitator"
	"github.com/eventpay/x402gate/logger"
	"github.com/eventpay/x402gate/metrics"
	"github.com/eventpay/x402gate/pricing"
	"github.com/eventpay/x402gate/types"
)

// Facilitator is the verify/settle surface the gate depends on.
// *facilitator.Client satisfies it.
type Facilitator interface {
	Verify(ctx context.Context, payment *types.PaymentPayload, requirements *types.PaymentRequirements) *types.VerifyResponse
	Settle(ctx context.Context, payment *types.PaymentPayload, requirements *types.PaymentRequirements) *types.SettleResponse
}

// ApprovalFunc runs after verification and before settlement. It is
// the operator's last chance to refuse a payment, for example when an
// event sold out between challenge and payment. A non-nil error turns
// into a fresh 402 challenge, never a settlement.
type ApprovalFunc func(ctx context.Context, resource, scope string, payment *types.PaymentPayload, payer string) error

// Config holds the static gate configuration.
type Config struct {
	// FacilitatorURL is the verify/settle service endpoint. Ignored
	// when a Facilitator is injected via WithFacilitator.
	FacilitatorURL string

	// PayTo is the default payout address. A pricing.Quote may
	// override it per request.
	PayTo string

	// Networks lists the networks challenges are issued for.
	Networks []string

	// Price is the default price for every resource, used when no
	// resolver is installed.
	Price string

	// Description labels challenges. A quote may override it.
	Description string

	// MimeType of the protected response, advertised in challenges.
	MimeType string

	// MaxTimeoutSeconds is the challenge validity window. Defaults to 60.
	MaxTimeoutSeconds int

	// BaseURL, when set, turns resource identifiers into absolute
	// URLs in challenges.
	BaseURL string
}

// Gate evaluates the x402 payment state machine for protected
// resources. Construct with New, then attach it to a transport via
// Middleware (net/http), the gin package, or the mcp package.
type Gate struct {
	cfg          Config
	facilitator  Facilitator
	resolver     pricing.Resolver
	approval     ApprovalFunc
	events       EventFunc
	logger       logger.Logger
	metrics      metrics.Recorder
	facilOptions []facilitator.Option
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gate) {
		g.metrics = r
	}
}

// WithResolver installs a pricing resolver, replacing the flat
// Config.Price.
func WithResolver(r pricing.Resolver) Option {
	return func(g *Gate) {
		g.resolver = r
	}
}

// WithApproval installs a pre-settlement approval hook.
func WithApproval(fn ApprovalFunc) Option {
	return func(g *Gate) {
		g.approval = fn
	}
}

// WithEvents installs a lifecycle event observer.
func WithEvents(fn EventFunc) Option {
	return func(g *Gate) {
		g.events = fn
	}
}

// WithFacilitator injects a facilitator implementation, replacing the
// HTTP client built from Config.FacilitatorURL.
func WithFacilitator(f Facilitator) Option {
	return func(g *Gate) {
		g.facilitator = f
	}
}

// WithFacilitatorOptions forwards options to the facilitator client
// built from Config.FacilitatorURL, such as auth headers or timeouts.
func WithFacilitatorOptions(opts ...facilitator.Option) Option {
	return func(g *Gate) {
		g.facilOptions = append(g.facilOptions, opts...)
	}
}

// New creates a Gate. It fails fast on configuration that could never
// issue a valid challenge.
func New(cfg Config, opts ...Option) (*Gate, error) {
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = 60
	}

	g := &Gate{
		cfg:     cfg,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.resolver == nil {
		if cfg.Price == "" {
			return nil, &types.X402Error{
				Code:    types.ErrServerMisconfigured,
				Message: "either Config.Price or a pricing resolver is required",
			}
		}
		g.resolver = pricing.NewStaticResolver(cfg.Price)
	}
	if len(cfg.Networks) == 0 {
		return nil, &types.X402Error{
			Code:    types.ErrServerMisconfigured,
			Message: "at least one network is required",
		}
	}
	for _, network := range cfg.Networks {
		if !types.Network(network).IsSupported() {
			return nil, &types.X402Error{
				Code:    types.ErrUnsupportedNetwork,
				Message: fmt.Sprintf("unsupported network: %q", network),
			}
		}
	}
	if g.facilitator == nil {
		if cfg.FacilitatorURL == "" {
			return nil, &types.X402Error{
				Code:    types.ErrServerMisconfigured,
				Message: "facilitator URL is required",
			}
		}
		facilOpts := append([]facilitator.Option{
			facilitator.WithLogger(g.logger),
			facilitator.WithMetrics(g.metrics),
		}, g.facilOptions...)
		g.facilitator = facilitator.New(cfg.FacilitatorURL, facilOpts...)
	}

	return g, nil
}

// Outcome is the result of evaluating one request against the gate.
// Exactly one of Granted, Challenge, or Err describes the verdict.
type Outcome struct {
	// Granted means the protected handler may run. Free resources
	// grant with a nil Settlement.
	Granted bool

	// Challenge is the 402 body to send when not granted.
	Challenge *types.PaymentRequired

	// Err is set only for server misconfiguration; adapters answer 5xx.
	Err error

	// Payer is the verified paying address, when known.
	Payer string

	// Settlement is the successful settlement receipt.
	Settlement *types.SettleResponse

	// SettlementHeader is the encoded X-PAYMENT-RESPONSE value.
	SettlementHeader string

	// Payment is the decoded payment that was settled.
	Payment *types.PaymentPayload
}

// Evaluate runs the payment state machine for one request. resource
// identifies what is being bought, scope narrows it to a tenant or
// item, and paymentHeader is the raw X-PAYMENT header value, empty
// when the client has not paid yet.
//
// Every client-side failure produces a re-issuable challenge. Only
// operator misconfiguration produces Outcome.Err.
func (g *Gate) Evaluate(ctx context.Context, resource, scope, paymentHeader string) *Outcome {
	quote, err := g.resolver.Resolve(ctx, resource, scope)
	if err != nil {
		g.logger.Error("pricing resolution failed", map[string]any{
			"resource": resource,
			"scope":    scope,
			"error":    err.Error(),
		})
		return &Outcome{Err: err}
	}
	if quote == nil {
		return &Outcome{Granted: true}
	}

	requirements, err := g.BuildRequirements(resource, quote)
	if err != nil {
		g.logger.Error("building requirements failed", map[string]any{
			"resource": resource,
			"error":    err.Error(),
		})
		return &Outcome{Err: err}
	}
	if err := g.enrichRequirements(ctx, requirements); err != nil {
		return &Outcome{Err: err}
	}

	if paymentHeader == "" {
		return g.challenge(resource, scope, requirements, "")
	}

	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		g.emit(Event{Type: EventVerifyFailed, Resource: resource, Scope: scope, Reason: err.Error()})
		g.count("verify_failed", "")
		return g.challenge(resource, scope, requirements, err.Error())
	}

	matched := matchRequirement(payment, requirements)
	if matched == nil {
		reason := fmt.Sprintf("payment for network %q does not match any accepted requirement", payment.Network)
		g.emit(Event{Type: EventVerifyFailed, Resource: resource, Scope: scope, Network: payment.Network, Reason: reason})
		g.count("verify_failed", payment.Network)
		return g.challenge(resource, scope, requirements, reason)
	}

	verify := g.facilitator.Verify(ctx, payment, matched)
	payer := verify.Payer
	if payer == "" {
		if extracted, err := encoding.PayerFromPayload(payment); err == nil {
			payer = extracted
		}
	}
	if !verify.IsValid {
		g.logger.Info("payment verification failed", map[string]any{
			"resource": resource,
			"network":  payment.Network,
			"payer":    payer,
			"reason":   verify.InvalidReason,
		})
		g.emit(Event{Type: EventVerifyFailed, Resource: resource, Scope: scope, Network: payment.Network, Payer: payer, Reason: verify.InvalidReason})
		g.count("verify_failed", payment.Network)
		return g.rechallenge(resource, scope, requirements, verify.InvalidReason, payer)
	}

	if g.approval != nil {
		if err := g.approval(ctx, resource, scope, payment, payer); err != nil {
			g.emit(Event{Type: EventVerifyFailed, Resource: resource, Scope: scope, Network: payment.Network, Payer: payer, Reason: err.Error()})
			g.count("approval_denied", payment.Network)
			return g.rechallenge(resource, scope, requirements, err.Error(), payer)
		}
	}

	start := time.Now()
	settlement := g.facilitator.Settle(ctx, payment, matched)
	g.metrics.ObserveLatency("gate_settle", time.Since(start), map[string]string{
		"network": payment.Network,
	})
	if !settlement.Success {
		g.logger.Warn("payment settlement failed", map[string]any{
			"resource": resource,
			"network":  payment.Network,
			"payer":    payer,
			"reason":   settlement.ErrorReason,
		})
		g.emit(Event{Type: EventSettleFailed, Resource: resource, Scope: scope, Network: payment.Network, Payer: payer, Reason: settlement.ErrorReason})
		g.count("settle_failed", payment.Network)
		return g.rechallenge(resource, scope, requirements, settlement.ErrorReason, payer)
	}
	if settlement.Payer == "" {
		settlement.Payer = payer
	}

	header, err := encoding.EncodeSettlement(settlement)
	if err != nil {
		return &Outcome{Err: fmt.Errorf("failed to encode settlement: %w", err)}
	}

	g.logger.Info("payment settled", map[string]any{
		"resource":    resource,
		"network":     payment.Network,
		"payer":       payer,
		"transaction": settlement.Transaction,
	})
	g.emit(Event{Type: EventGranted, Resource: resource, Scope: scope, Network: payment.Network, Payer: payer, Settlement: settlement})
	g.count("granted", payment.Network)

	return &Outcome{
		Granted:          true,
		Payer:            payer,
		Settlement:       settlement,
		SettlementHeader: header,
		Payment:          payment,
	}
}

// extraEnricher is implemented by facilitator clients that can fill
// in advertised extras such as the Solana fee payer.
type extraEnricher interface {
	EnrichExtra(ctx context.Context, requirements []*types.PaymentRequirements) error
}

// enrichRequirements completes requirements that need facilitator
// metadata and confirms every challenge is issuable. A Solana
// challenge without a fee payer can never be answered, so it is a
// misconfiguration, not a 402.
func (g *Gate) enrichRequirements(ctx context.Context, requirements []*types.PaymentRequirements) error {
	if enricher, ok := g.facilitator.(extraEnricher); ok {
		if err := enricher.EnrichExtra(ctx, requirements); err != nil {
			g.logger.Warn("facilitator extras unavailable", map[string]any{
				"error": err.Error(),
			})
		}
	}
	for _, req := range requirements {
		if err := types.CheckRequirements(req); err != nil {
			return err
		}
	}
	return nil
}

// rechallenge issues a fresh challenge after a failed payment attempt,
// keeping the recovered payer visible for client-side diagnostics.
func (g *Gate) rechallenge(resource, scope string, requirements []*types.PaymentRequirements, reason, payer string) *Outcome {
	outcome := g.challenge(resource, scope, requirements, reason)
	outcome.Challenge.Payer = payer
	return outcome
}

func (g *Gate) challenge(resource, scope string, requirements []*types.PaymentRequirements, reason string) *Outcome {
	accepts := make([]types.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		accepts[i] = *req
	}
	if reason == "" {
		g.emit(Event{Type: EventChallenge, Resource: resource, Scope: scope})
		g.count("challenge_issued", "")
	}
	return &Outcome{
		Challenge: &types.PaymentRequired{
			X402Version: types.ProtocolVersion,
			Accepts:     accepts,
			Error:       reason,
		},
	}
}

func matchRequirement(payment *types.PaymentPayload, requirements []*types.PaymentRequirements) *types.PaymentRequirements {
	for _, req := range requirements {
		if payment.Matches(req) {
			return req
		}
	}
	return nil
}

func (g *Gate) emit(e Event) {
	if g.events != nil {
		g.events(e)
	}
}

func (g *Gate) count(name, network string) {
	g.metrics.IncCounter(name, map[string]string{"network": network})
}
