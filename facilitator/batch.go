package facilitator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/eventpay/x402gate/types"
)

// batchConcurrency caps in-flight facilitator calls per batch.
const batchConcurrency = 8

// VerifyAll verifies one payment against each candidate requirement
// concurrently and returns the results in requirement order. Slots for
// payments the facilitator could not be reached for hold invalid
// results, matching the single-call contract.
func (c *Client) VerifyAll(ctx context.Context, payment *types.PaymentPayload, requirements []*types.PaymentRequirements) []*types.VerifyResponse {
	results := make([]*types.VerifyResponse, len(requirements))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, req := range requirements {
		g.Go(func() error {
			results[i] = c.Verify(gctx, payment, req)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()
	return results
}

// SettleAll settles a batch of verified payments concurrently, one
// payment per requirement, preserving order. Used by callers that
// aggregate several gated purchases into a single checkout.
func (c *Client) SettleAll(ctx context.Context, payments []*types.PaymentPayload, requirements []*types.PaymentRequirements) []*types.SettleResponse {
	n := len(payments)
	if len(requirements) < n {
		n = len(requirements)
	}
	results := make([]*types.SettleResponse, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = c.Settle(gctx, payments[i], requirements[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}
