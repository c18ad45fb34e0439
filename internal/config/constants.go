package config

import (
	"math/big"
	"time"
)

// Protocol constants. These mirror the launch-platform contracts and must not
// be tuned per deployment; changing them desyncs the indexer from the chain.

const (
	// TokenDecimals is the decimal count of every launched token.
	TokenDecimals = 18
	// MasDecimals is the decimal count of WMAS, the reference asset.
	MasDecimals = 9
	// USDCDecimals is the decimal count of the USD quote asset.
	USDCDecimals = 6

	// OnePeriod is the duration of one ledger period.
	OnePeriod = 16 * time.Second
	// ThreadOffset is the wall-clock spacing between consecutive threads
	// inside one period (thread/2 seconds).
	ThreadOffset = 500 * time.Millisecond

	// OneTick is the analytics bucket width.
	OneTick = 5 * time.Minute
)

var (
	// OneMas is 1 WMAS in base units.
	OneMas = new(big.Int).SetUint64(1_000_000_000)
	// OneToken is 1 launched token in base units.
	OneToken, _ = new(big.Int).SetString("1000000000000000000", 10)

	// VirtualLiquidity is the WMAS side seeded into every launch pool.
	VirtualLiquidity = mulUint(OneMas, 84_000)
	// TotalSupply is the full minted supply of a launched token.
	TotalSupply = mulUint(OneToken, 1_000_000_000)
	// LockedSupply is the token share reserved for AMM migration.
	LockedSupply = mulUint(OneToken, 200_000_000)

	// CompletionThreshold is the token-side reserve level at which a
	// launch pool is fully bought and migrates to a Dusa pool.
	CompletionThreshold = new(big.Int).Add(LockedSupply, VirtualLiquidity)
)

// Core contract addresses (mainnet).
const (
	FactoryAddress  = "AS1BU12yT6f9d95jbut1B1dUkpbwqrKuW3TErh9bFa1TgZ5TwFQv"
	DeployerAddress = "AS1UQk1E1fEwBehodN1dw7ZzRc49b6ohgwQYwbcRjekTH2v1pNDC"

	DusaFactoryAddress = "AS12TEySQurYZwkfWbqRsnx2GmndPhW5ryfAKkGdSkBVgNm9fa1rA"
	DusaRouterAddress  = "AS12Kyqyfg6qRmHRdtmRS43GLymRSAn4FZHYqC4K75gG2DBbirGPp"

	WMASAddress = "AS12LArwGjZcAQoaiBnL5Vs2SbaqXMj9P8y9oWjTmJzPbVoUeV9AJ"
	USDCAddress = "AS1hCJXjndR4c9vekLWsXGnrdigp4AaZ7uYG3UKFzzKnWVsrNLPJ"

	// USDCWMASPoolAddress is the Dusa pool the reference price is read from.
	USDCWMASPoolAddress = "AS12Q5NyCQUtEBTnnqqBwcGyYb18szbbKv5GArcdk9tm2HitTupHw"
)

// CoreContracts is the allow-list of pre-enumerated indexed contracts.
// Launch pools are created dynamically and are matched by function name
// instead.
var CoreContracts = []string{FactoryAddress, DeployerAddress}

func mulUint(unit *big.Int, n uint64) *big.Int {
	return new(big.Int).Mul(unit, new(big.Int).SetUint64(n))
}
