package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequirements() *PaymentRequirements {
	return &PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "50000",
		Resource:          "https://api.example.com/reports",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	}
}

func TestRequirementsValidate(t *testing.T) {
	require.NoError(t, validRequirements().Validate())

	mutations := map[string]func(*PaymentRequirements){
		"missing payTo":   func(pr *PaymentRequirements) { pr.PayTo = "" },
		"missing amount":  func(pr *PaymentRequirements) { pr.MaxAmountRequired = "" },
		"missing asset":   func(pr *PaymentRequirements) { pr.Asset = "" },
		"missing network": func(pr *PaymentRequirements) { pr.Network = "" },
		"zero timeout":    func(pr *PaymentRequirements) { pr.MaxTimeoutSeconds = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			pr := validRequirements()
			mutate(pr)
			err := pr.Validate()
			require.Error(t, err)
			assert.True(t, HasCode(err, ErrServerMisconfigured))
		})
	}

	t.Run("wrong scheme", func(t *testing.T) {
		pr := validRequirements()
		pr.Scheme = "upto"
		assert.True(t, HasCode(pr.Validate(), ErrUnsupportedScheme))
	})

	t.Run("payTo must be a hex address on EVM", func(t *testing.T) {
		pr := validRequirements()
		pr.PayTo = "not-an-address"
		assert.True(t, HasCode(pr.Validate(), ErrServerMisconfigured))
	})

	t.Run("solana requires fee payer", func(t *testing.T) {
		pr := validRequirements()
		pr.Network = "solana-devnet"
		pr.Asset = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
		pr.PayTo = "ComputeBudget111111111111111111111111111111"
		assert.True(t, HasCode(pr.Validate(), ErrServerMisconfigured))

		pr.Extra = map[string]any{"feePayer": "not-base58!"}
		assert.True(t, HasCode(pr.Validate(), ErrServerMisconfigured))

		pr.Extra = map[string]any{"feePayer": "FeePayer11111111111111111111111111111111111"}
		assert.NoError(t, pr.Validate())
	})
}

func TestPayloadMatches(t *testing.T) {
	pr := validRequirements()
	p := &PaymentPayload{X402Version: ProtocolVersion, Scheme: SchemeExact, Network: "base-sepolia"}
	assert.True(t, p.Matches(pr))

	p.Network = "polygon"
	assert.False(t, p.Matches(pr))

	p.Network = "base-sepolia"
	p.Scheme = "upto"
	assert.False(t, p.Matches(pr))
}

func TestNetworkFamilies(t *testing.T) {
	assert.True(t, Network("base").IsEVM())
	assert.True(t, Network("polygon-amoy").IsEVM())
	assert.True(t, Network("solana-devnet").IsSolana())
	assert.False(t, Network("solana").IsEVM())
	assert.False(t, Network("near").IsSupported())

	assert.True(t, Network("base-sepolia").IsTestnet())
	assert.False(t, Network("base").IsTestnet())
}

func TestUSDCRegistry(t *testing.T) {
	for _, n := range []Network{NetworkBase, NetworkBaseSepolia, NetworkPolygon, NetworkPolygonAmoy, NetworkSolana, NetworkSolanaDevnet} {
		asset, ok := USDC(n)
		require.True(t, ok, n)
		assert.Equal(t, 6, asset.Decimals)
		assert.NotEmpty(t, asset.Address)
	}

	decimals, ok := AssetDecimals(NetworkBaseSepolia, "0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	require.True(t, ok)
	assert.Equal(t, 6, decimals)

	_, ok = AssetDecimals(NetworkBase, "0xunknown")
	assert.False(t, ok)
}

func TestX402Error(t *testing.T) {
	err := &X402Error{Code: ErrVerificationFailed, Message: "nope"}
	assert.Contains(t, err.Error(), ErrVerificationFailed)
	assert.True(t, HasCode(err, ErrVerificationFailed))
	assert.False(t, HasCode(err, ErrSettlementFailed))
	assert.False(t, HasCode(assert.AnError, ErrVerificationFailed))
}
