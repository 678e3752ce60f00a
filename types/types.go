// Package types defines the wire types of the x402 payment protocol as seen
// by a resource server: the requirements it advertises on a 402 challenge,
// the payment proof a client submits, and the facilitator's verify/settle
// results.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// ProtocolVersion is the x402 protocol version spoken by this module.
const ProtocolVersion = 1

// SchemeExact is the fixed-amount pull-authorization payment scheme.
// It is the only scheme this module accepts.
const SchemeExact = "exact"

// PaymentRequirements describes one payment option a resource server accepts.
// It is rebuilt fresh for every challenge and echoed back on every 402
// response so a client can always retry without re-deriving pricing.
type PaymentRequirements struct {
	// Scheme of the payment protocol (always "exact" here).
	Scheme string `json:"scheme" validate:"required,eq=exact"`

	// Network the payment must settle on (e.g. "base-sepolia").
	Network string `json:"network" validate:"required"`

	// MaxAmountRequired is the price in atomic units of the asset,
	// encoded as a base-10 digit string with no sign or separators.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,number"`

	// Resource identifies the gated operation (URL, tool URI, ...).
	Resource string `json:"resource" validate:"required"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// MimeType of the resource response.
	MimeType string `json:"mimeType"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo" validate:"required"`

	// MaxTimeoutSeconds is how long a signed authorization for these
	// requirements remains acceptable.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"required,gt=0"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `json:"asset" validate:"required"`

	// Extra carries scheme/network specific data, e.g. the fee payer
	// public key for Solana or the EIP-712 domain name/version for EVM.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the canonical 402 response body.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`

	// Payer is the address recovered from a rejected payment, when one
	// could be extracted. Diagnostic only.
	Payer string `json:"payer,omitempty"`
}

// PaymentPayload is the client-supplied payment proof. It is
// attacker-controlled input and is never trusted until the facilitator's
// verify call accepts it.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`

	// Payload is the scheme-specific signed authorization. Its shape is
	// determined by Scheme and the network family; use the typed views
	// below after decoding.
	Payload json.RawMessage `json:"payload"`
}

// ExactEVMPayload is the "exact" scheme payload for EVM networks: an
// EIP-3009 transferWithAuthorization plus its EIP-712 signature.
type ExactEVMPayload struct {
	Signature     string           `json:"signature"`
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization holds the EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string; single-use by construction,
	// which is what makes a replayed authorization unsettleable.
	Nonce string `json:"nonce"`
}

// ExactSolanaPayload is the "exact" scheme payload for Solana networks:
// a base64-encoded partially signed transaction. The facilitator adds the
// fee payer signature before broadcasting.
type ExactSolanaPayload struct {
	Transaction string `json:"transaction"`
}

// VerifyResponse is the facilitator's answer to a verify call.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settle call. Transaction
// is the on-chain hash/signature and is present only on success.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// SupportedItem describes one payment kind a facilitator supports.
type SupportedItem struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the facilitator's /supported payload.
type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// Validate checks that the requirements carry everything a client needs to
// construct a payment.
func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme != SchemeExact {
		return &X402Error{
			Code:    ErrUnsupportedScheme,
			Message: fmt.Sprintf("unsupported scheme: %q", pr.Scheme),
		}
	}
	if pr.Network == "" {
		return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.network is required"}
	}
	if pr.MaxAmountRequired == "" {
		return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.maxAmountRequired is required"}
	}
	if pr.PayTo == "" {
		return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.payTo is required"}
	}
	if pr.Asset == "" {
		return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.asset is required"}
	}
	if pr.MaxTimeoutSeconds <= 0 {
		return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.maxTimeoutSeconds must be greater than 0"}
	}
	switch {
	case Network(pr.Network).IsEVM():
		if !common.IsHexAddress(pr.PayTo) {
			return &X402Error{Code: ErrServerMisconfigured, Message: fmt.Sprintf("requirements.payTo is not a valid EVM address: %q", pr.PayTo)}
		}
	case Network(pr.Network).IsSolana():
		if _, err := solana.PublicKeyFromBase58(pr.PayTo); err != nil {
			return &X402Error{Code: ErrServerMisconfigured, Message: fmt.Sprintf("requirements.payTo is not a valid Solana public key: %q", pr.PayTo)}
		}
		fp, ok := pr.Extra["feePayer"].(string)
		if !ok || fp == "" {
			return &X402Error{Code: ErrServerMisconfigured, Message: "requirements.extra.feePayer is required on Solana networks"}
		}
		if _, err := solana.PublicKeyFromBase58(fp); err != nil {
			return &X402Error{Code: ErrServerMisconfigured, Message: fmt.Sprintf("requirements.extra.feePayer is not a valid Solana public key: %q", fp)}
		}
	}
	return nil
}

// Matches reports whether the payload responds to these requirements
// (same version, scheme and network).
func (p *PaymentPayload) Matches(pr *PaymentRequirements) bool {
	return p.X402Version == ProtocolVersion &&
		p.Scheme == pr.Scheme &&
		p.Network == pr.Network
}
