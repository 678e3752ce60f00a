// Package encoding implements the wire codecs for x402 payment data:
// the X-PAYMENT request header and the X-PAYMENT-RESPONSE settlement
// header, both base64-encoded JSON.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/eventpay/x402gate/types"
)

// maxHeaderBytes bounds the decoded X-PAYMENT payload. Oversized
// headers are rejected on encoded length, before any decoding
// allocates.
const maxHeaderBytes = 16 * 1024

// EncodePayment converts a PaymentPayload to a base64-encoded JSON
// string suitable for the X-PAYMENT header.
func EncodePayment(payment *types.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment parses an X-PAYMENT header value into a
// PaymentPayload. Every failure mode, bad base64, bad JSON, wrong
// protocol version, unknown scheme, or a scheme payload that does not
// match its declared shape, is reported as a malformed-header error so
// the caller can re-issue a 402 challenge.
func DecodePayment(header string) (*types.PaymentPayload, error) {
	if header == "" {
		return nil, malformed("payment header is empty")
	}
	if len(header) > base64.StdEncoding.EncodedLen(maxHeaderBytes) {
		return nil, malformed(fmt.Sprintf("payment header exceeds %d bytes", maxHeaderBytes))
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid base64 in payment header: %v", err))
	}

	var payment types.PaymentPayload
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return nil, malformed(fmt.Sprintf("invalid JSON in payment header: %v", err))
	}

	if payment.X402Version != types.ProtocolVersion {
		return nil, &types.X402Error{
			Code:    types.ErrUnsupportedVersion,
			Message: fmt.Sprintf("unsupported x402 version: %d", payment.X402Version),
		}
	}
	if payment.Scheme != types.SchemeExact {
		return nil, &types.X402Error{
			Code:    types.ErrUnsupportedScheme,
			Message: fmt.Sprintf("unsupported payment scheme: %q", payment.Scheme),
		}
	}
	if payment.Network == "" {
		return nil, malformed("payment network is empty")
	}

	if err := validatePayload(&payment); err != nil {
		return nil, err
	}

	return &payment, nil
}

// EncodeSettlement converts a SettleResponse to a base64-encoded JSON
// string for the X-PAYMENT-RESPONSE header.
func EncodeSettlement(settlement *types.SettleResponse) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header back into a
// SettleResponse. Clients use this to read settlement receipts.
func DecodeSettlement(header string) (*types.SettleResponse, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var settlement types.SettleResponse
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return &settlement, nil
}

func malformed(msg string) *types.X402Error {
	return &types.X402Error{
		Code:    types.ErrMalformedPaymentHeader,
		Message: msg,
	}
}
