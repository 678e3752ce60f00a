package types

// Network identifies the chain a payment settles on.
type Network string

const (
	// EVM networks
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet

	// Solana networks
	NetworkSolana       Network = "solana"
	NetworkSolanaDevnet Network = "solana-devnet" // testnet
)

func (n Network) IsEVM() bool {
	return n == NetworkBase || n == NetworkBaseSepolia || n == NetworkPolygon || n == NetworkPolygonAmoy
}

func (n Network) IsSolana() bool {
	return n == NetworkSolana || n == NetworkSolanaDevnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkPolygonAmoy || n == NetworkSolanaDevnet
}

// IsSupported reports whether the gate knows how to issue requirements for
// this network.
func (n Network) IsSupported() bool {
	return n.IsEVM() || n.IsSolana()
}

func (n Network) String() string {
	return string(n)
}

// Asset describes a token an operator can denominate prices in.
type Asset struct {
	// Address is the contract address (EVM) or mint address (Solana).
	Address string

	Symbol   string
	Decimals int
}

// usdc lists the canonical USDC deployments per network. All use 6 decimals.
var usdc = map[Network]Asset{
	NetworkBase:         {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6},
	NetworkBaseSepolia:  {Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Symbol: "USDC", Decimals: 6},
	NetworkPolygon:      {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Decimals: 6},
	NetworkPolygonAmoy:  {Address: "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582", Symbol: "USDC", Decimals: 6},
	NetworkSolana:       {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6},
	NetworkSolanaDevnet: {Address: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", Symbol: "USDC", Decimals: 6},
}

// USDC returns the canonical USDC asset for a network.
func USDC(n Network) (Asset, bool) {
	a, ok := usdc[n]
	return a, ok
}

// AssetDecimals resolves the decimal precision for an asset on a network.
// Network and asset together determine the precision used to derive an
// atomic amount from a human price. Unknown assets report ok=false; callers
// must then supply the precision explicitly.
func AssetDecimals(n Network, asset string) (int, bool) {
	if a, ok := usdc[n]; ok && a.Address == asset {
		return a.Decimals, true
	}
	return 0, false
}
