package facilitator

import (
	"context"
	"encoding/json"

	"github.com/eventpay/x402gate/types"
)

// EnrichExtra fills in facilitator-advertised extras on requirements
// that need them. Solana requirements must name the facilitator's fee
// payer before a client can build the partially-signed transaction, so
// for any Solana requirement missing extra.feePayer the value is
// copied from the matching GET /supported entry.
//
// Requirements that already carry a fee payer are left untouched.
func (c *Client) EnrichExtra(ctx context.Context, requirements []*types.PaymentRequirements) error {
	var needsFeePayer bool
	for _, req := range requirements {
		if types.Network(req.Network).IsSolana() && !hasFeePayer(req) {
			needsFeePayer = true
			break
		}
	}
	if !needsFeePayer {
		return nil
	}

	supported, err := c.Supported(ctx)
	if err != nil {
		return err
	}

	feePayers := make(map[string]string)
	for _, item := range supported.Kinds {
		if item.Extra == nil {
			continue
		}
		if fp, ok := item.Extra["feePayer"].(string); ok && fp != "" {
			feePayers[item.Network] = fp
		}
	}

	for _, req := range requirements {
		if !types.Network(req.Network).IsSolana() || hasFeePayer(req) {
			continue
		}
		fp, ok := feePayers[req.Network]
		if !ok {
			continue
		}
		if req.Extra == nil {
			req.Extra = make(map[string]any)
		}
		req.Extra["feePayer"] = fp
	}
	return nil
}

func hasFeePayer(req *types.PaymentRequirements) bool {
	if req.Extra == nil {
		return false
	}
	fp, ok := req.Extra["feePayer"].(string)
	if !ok {
		// Extra may arrive as raw JSON when requirements were parsed
		// from config; tolerate a json.RawMessage string.
		if raw, isRaw := req.Extra["feePayer"].(json.RawMessage); isRaw {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return true
			}
		}
		return false
	}
	return fp != ""
}
