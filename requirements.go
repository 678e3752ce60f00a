package x402gate

import (
	"fmt"
	"strings"

	"github.com/eventpay/x402gate/pricing"
	"github.com/eventpay/x402gate/types"
	"github.com/eventpay/x402gate/units"
)

// BuildRequirements turns a price quote into one PaymentRequirements
// per accepted network. It is deterministic: the same quote and config
// always produce the same requirements, so a client retrying a 402 sees
// a stable challenge.
func (g *Gate) BuildRequirements(resource string, quote *pricing.Quote) ([]*types.PaymentRequirements, error) {
	payTo := quote.PayTo
	if payTo == "" {
		payTo = g.cfg.PayTo
	}
	description := quote.Description
	if description == "" {
		description = g.cfg.Description
	}

	requirements := make([]*types.PaymentRequirements, 0, len(g.cfg.Networks))
	for _, network := range g.cfg.Networks {
		n := types.Network(network)
		if !n.IsSupported() {
			return nil, &types.X402Error{
				Code:    types.ErrUnsupportedNetwork,
				Message: fmt.Sprintf("unsupported network in config: %q", network),
			}
		}

		asset, ok := types.USDC(n)
		if !ok {
			return nil, &types.X402Error{
				Code:    types.ErrServerMisconfigured,
				Message: fmt.Sprintf("no accepted asset for network %q", network),
			}
		}

		atomic, err := units.ToAtomicUnits(quote.Price, asset.Decimals)
		if err != nil {
			return nil, err
		}

		req := &types.PaymentRequirements{
			Scheme:            types.SchemeExact,
			Network:           network,
			MaxAmountRequired: atomic,
			Resource:          g.resourceURL(resource),
			Description:       description,
			MimeType:          g.cfg.MimeType,
			PayTo:             payTo,
			MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
			Asset:             asset.Address,
		}
		requirements = append(requirements, req)
	}
	return requirements, nil
}

// resourceURL renders the challenge's resource field. Resource
// identifiers arrive as "METHOD /path"; with a BaseURL configured the
// path is joined onto it, otherwise the identifier stands as is.
func (g *Gate) resourceURL(resource string) string {
	if g.cfg.BaseURL == "" {
		return resource
	}
	_, path, found := strings.Cut(resource, " ")
	if !found {
		path = resource
	}
	return strings.TrimRight(g.cfg.BaseURL, "/") + path
}
