package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eventpay/x402gate/types"
)

const (
	evmSignatureLen = 65
	evmNonceLen     = 32
)

// validatePayload checks the scheme payload against the shape its
// network family declares. The inner bytes stay opaque beyond shape
// checks; signature recovery belongs to the facilitator.
func validatePayload(payment *types.PaymentPayload) error {
	network := types.Network(payment.Network)
	switch {
	case network.IsEVM():
		_, err := decodeEVMPayload(payment.Payload)
		return err
	case network.IsSolana():
		_, err := decodeSolanaPayload(payment.Payload)
		return err
	default:
		return &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported payment network: %q", payment.Network),
		}
	}
}

func decodeEVMPayload(raw json.RawMessage) (*types.ExactEVMPayload, error) {
	var payload types.ExactEVMPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed(fmt.Sprintf("invalid EVM payload: %v", err))
	}

	sig, err := hexutil.Decode(payload.Signature)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid EVM signature encoding: %v", err))
	}
	if len(sig) != evmSignatureLen {
		return nil, malformed(fmt.Sprintf("EVM signature must be %d bytes, got %d", evmSignatureLen, len(sig)))
	}

	auth := payload.Authorization
	if !common.IsHexAddress(auth.From) {
		return nil, malformed(fmt.Sprintf("invalid authorization from address: %q", auth.From))
	}
	if !common.IsHexAddress(auth.To) {
		return nil, malformed(fmt.Sprintf("invalid authorization to address: %q", auth.To))
	}
	if _, ok := new(big.Int).SetString(auth.Value, 10); !ok {
		return nil, malformed(fmt.Sprintf("invalid authorization value: %q", auth.Value))
	}
	if _, ok := new(big.Int).SetString(auth.ValidAfter, 10); !ok {
		return nil, malformed(fmt.Sprintf("invalid authorization validAfter: %q", auth.ValidAfter))
	}
	if _, ok := new(big.Int).SetString(auth.ValidBefore, 10); !ok {
		return nil, malformed(fmt.Sprintf("invalid authorization validBefore: %q", auth.ValidBefore))
	}
	nonce, err := hexutil.Decode(auth.Nonce)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid authorization nonce encoding: %v", err))
	}
	if len(nonce) != evmNonceLen {
		return nil, malformed(fmt.Sprintf("authorization nonce must be %d bytes, got %d", evmNonceLen, len(nonce)))
	}

	return &payload, nil
}

func decodeSolanaPayload(raw json.RawMessage) (*types.ExactSolanaPayload, error) {
	var payload types.ExactSolanaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed(fmt.Sprintf("invalid Solana payload: %v", err))
	}
	if payload.Transaction == "" {
		return nil, malformed("Solana payload missing transaction")
	}
	if _, err := decodeSolanaTransaction(payload.Transaction); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decodeSolanaTransaction(encoded string) (*solana.Transaction, error) {
	txBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid base64 in Solana transaction: %v", err))
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid Solana transaction: %v", err))
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, malformed("Solana transaction has no account keys")
	}
	return tx, nil
}

// PayerFromPayload extracts the paying address from a decoded payment.
// For EVM payloads it is the EIP-3009 authorization's from address.
// For Solana it is the transaction's fee payer.
func PayerFromPayload(payment *types.PaymentPayload) (string, error) {
	network := types.Network(payment.Network)
	switch {
	case network.IsEVM():
		payload, err := decodeEVMPayload(payment.Payload)
		if err != nil {
			return "", err
		}
		return payload.Authorization.From, nil
	case network.IsSolana():
		var payload types.ExactSolanaPayload
		if err := json.Unmarshal(payment.Payload, &payload); err != nil {
			return "", malformed(fmt.Sprintf("invalid Solana payload: %v", err))
		}
		tx, err := decodeSolanaTransaction(payload.Transaction)
		if err != nil {
			return "", err
		}
		return tx.Message.AccountKeys[0].String(), nil
	default:
		return "", &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported payment network: %q", payment.Network),
		}
	}
}
