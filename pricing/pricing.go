// Package pricing decides what a protected resource costs and who gets
// paid for it. A Resolver is consulted on every challenge, so prices
// and payout addresses can change between requests without restarting
// the server.
package pricing

import (
	"context"
	"fmt"

	"github.com/eventpay/x402gate/types"
	"github.com/eventpay/x402gate/units"
)

// Quote is the price decision for one request.
type Quote struct {
	// Price is a human-readable decimal amount, e.g. "0.05".
	Price string
	// PayTo is the receiving address. Empty means use the gate's
	// default payout address.
	PayTo string
	// Description overrides the requirement description when set.
	Description string
}

// Resolver prices a resource. resource identifies what is being
// bought (for HTTP, "METHOD /path"); scope narrows it to a tenant or
// item, such as an event id, and may be empty.
//
// Returning a nil Quote with a nil error means the resource is free
// and the request passes without payment.
type Resolver interface {
	Resolve(ctx context.Context, resource, scope string) (*Quote, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, resource, scope string) (*Quote, error)

func (f ResolverFunc) Resolve(ctx context.Context, resource, scope string) (*Quote, error) {
	return f(ctx, resource, scope)
}

// StaticResolver prices resources from a fixed table with an optional
// fallback price for everything not listed.
type StaticResolver struct {
	// Prices maps resource identifiers to quotes.
	Prices map[string]Quote
	// Default applies to resources absent from Prices. Nil means
	// unlisted resources are free.
	Default *Quote
}

// NewStaticResolver builds a resolver that charges every resource the
// same price.
func NewStaticResolver(price string) *StaticResolver {
	return &StaticResolver{Default: &Quote{Price: price}}
}

func (s *StaticResolver) Resolve(_ context.Context, resource, _ string) (*Quote, error) {
	if q, ok := s.Prices[resource]; ok {
		return checkQuote(&q)
	}
	if s.Default != nil {
		q := *s.Default
		return checkQuote(&q)
	}
	return nil, nil
}

// Listing is a priced item held in a Store, such as an event with
// per-host payout.
type Listing struct {
	// Price is a human-readable decimal amount.
	Price string
	// PayTo receives the payment for this listing.
	PayTo string
	// Description labels the listing in challenges.
	Description string
	// CapacityRemaining, when non-negative, limits how many more
	// purchases the listing admits. Negative means unlimited.
	CapacityRemaining int
}

// ErrNotFound reports a scope a Store has no listing for.
var ErrNotFound = fmt.Errorf("pricing: listing not found")

// Store looks up listings by resource and scope. Implementations back
// onto databases or in-process registries.
type Store interface {
	Get(ctx context.Context, resource, scope string) (*Listing, error)
}

// StoreResolver prices requests from a Store, typically keyed by a
// scope such as an event id. A missing listing prices as a
// misconfiguration so the gate answers 5xx rather than minting a
// challenge for something that cannot be bought.
type StoreResolver struct {
	Store Store
}

func (r *StoreResolver) Resolve(ctx context.Context, resource, scope string) (*Quote, error) {
	listing, err := r.Store.Get(ctx, resource, scope)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrServerMisconfigured,
			Message: fmt.Sprintf("no listing for resource %q scope %q: %v", resource, scope, err),
		}
	}
	if listing.CapacityRemaining == 0 {
		return nil, &types.X402Error{
			Code:    types.ErrServerMisconfigured,
			Message: fmt.Sprintf("listing for resource %q scope %q is sold out", resource, scope),
		}
	}
	return checkQuote(&Quote{
		Price:       listing.Price,
		PayTo:       listing.PayTo,
		Description: listing.Description,
	})
}

// checkQuote rejects quotes whose configured price is not a parseable
// decimal. A bad price is an operator mistake and fails resolution
// rather than surfacing later inside the amount conversion.
func checkQuote(q *Quote) (*Quote, error) {
	if err := units.ValidateAmount(q.Price); err != nil {
		return nil, err
	}
	return q, nil
}
