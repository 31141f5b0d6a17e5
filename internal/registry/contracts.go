package registry

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// BNB Smart Chain mainnet.
const (
	ChainID        int64 = 56
	ChainName            = "BSC"
	NativeSymbol         = "BNB"
	NativeDecimals int32 = 18

	// VTokenDecimals applies to every Venus market token.
	VTokenDecimals int32 = 8

	SlisBNBSymbol         = "slisBNB"
	SlisBNBDecimals int32 = 18

	RepayGasLimit uint64 = 500_000
	UnbondingHint        = "Return in 7-8 days to claim your BNB"
)

var (
	StakeManagerAddress        = common.HexToAddress("0x1adB950d8bB3dA4bE104211D5AB038628e477fE6")
	SlisBNBAddress             = common.HexToAddress("0xB0b84D294e0C75A6abe60171b70edEb2EFd14A1B")
	KernelStakerGatewayAddress = common.HexToAddress("0xb32dF5B33dBCCA60437EC17b27842c12bFE83394")
)

// Protocol limits, in base units.
var (
	MinStake         = big.NewInt(100_000_000_000_000)   // 0.0001 BNB
	GasReserve       = big.NewInt(1_000_000_000_000_000) // 0.001 BNB
	MinListaUnstake  = big.NewInt(1_000_000_000_000_000) // 0.001 slisBNB
	GasPriceFloorWei = big.NewInt(3_000_000_000)         // 3 gwei
)

type PoolID string

const (
	PoolCore   PoolID = "core"
	PoolLiquid PoolID = "liquid"
)

type Pool struct {
	ID          PoolID
	Name        string
	Comptroller common.Address
	// Discover marks pools whose market tokens are found through getAllMarkets.
	Discover bool
}

// Market is one Venus lending market. VToken is zero for markets resolved by discovery.
type Market struct {
	Symbol     string
	Aliases    []string
	Underlying common.Address
	VToken     common.Address
	Decimals   int32
	Pool       PoolID
}

func (m Market) Matches(symbol string) bool {
	clean := strings.TrimSpace(symbol)
	if strings.EqualFold(m.Symbol, clean) {
		return true
	}
	for _, alias := range m.Aliases {
		if strings.EqualFold(alias, clean) {
			return true
		}
	}
	return false
}

var pools = []Pool{
	{
		ID:          PoolCore,
		Name:        "Core Pool",
		Comptroller: common.HexToAddress("0xfD36E2c2a6789Db23113685031d7F16329158384"),
	},
	{
		ID:          PoolLiquid,
		Name:        "Liquid Staked BNB Pool",
		Comptroller: common.HexToAddress("0xd933909A4a2b7A4638903028f44D1d38ce27c352"),
		Discover:    true,
	},
}

var coreMarkets = []Market{
	{Symbol: "ETH", Underlying: common.HexToAddress("0x2170Ed0880ac9A755fd29B2688956BD959F933F8"), VToken: common.HexToAddress("0xf508fCD89b8bd15579dc79A6827cB4686A3592c8"), Decimals: 18, Pool: PoolCore},
	{Symbol: "BTC", Aliases: []string{"BTCB"}, Underlying: common.HexToAddress("0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c"), VToken: common.HexToAddress("0x882C173bC7Ff3b7786CA16dfeD3DFFfb9Ee7847B"), Decimals: 18, Pool: PoolCore},
	{Symbol: "USDT", Underlying: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), VToken: common.HexToAddress("0xfD5840Cd36d94D7229439859C0112a4185BC0255"), Decimals: 18, Pool: PoolCore},
	{Symbol: "USDC", Underlying: common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"), VToken: common.HexToAddress("0xecA88125a5ADbe82614ffC12D0DB554E2e2867C8"), Decimals: 18, Pool: PoolCore},
	{Symbol: "DAI", Underlying: common.HexToAddress("0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3"), VToken: common.HexToAddress("0x334b3eCB4DCa3593BCCC3c7EBD1A1C1d1780FBF1"), Decimals: 18, Pool: PoolCore},
	{Symbol: "lisUSD", Underlying: common.HexToAddress("0x0782b6d8c4551B9760e74c0545a9bCD90bdc41E5"), VToken: common.HexToAddress("0x689E0daB47Ab16bcae87Ec18491692BF621Dc6Ab"), Decimals: 18, Pool: PoolCore},
	{Symbol: "USD1", Underlying: common.HexToAddress("0x8d0D000Ee44948FC98c9B98A4FA4921476f08B0d"), VToken: common.HexToAddress("0x0C1DA220D301155b87318B90692Da8dc43B67340"), Decimals: 18, Pool: PoolCore},
	{Symbol: "SolvBTC", Underlying: common.HexToAddress("0x4aae823a6a0b376De6A78e74eCC5b079d38cBCf7"), VToken: common.HexToAddress("0xf841cb62c19fCd4fF5CD0AaB5939f3140BaaC3Ea"), Decimals: 18, Pool: PoolCore},
}

var liquidMarkets = []Market{
	{Symbol: SlisBNBSymbol, Underlying: SlisBNBAddress, Decimals: SlisBNBDecimals, Pool: PoolLiquid},
	{Symbol: "WBNB", Underlying: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Decimals: 18, Pool: PoolLiquid},
}

func Pools() []Pool {
	return append([]Pool(nil), pools...)
}

func LookupPool(id PoolID) (Pool, bool) {
	for _, p := range pools {
		if p.ID == id {
			return p, true
		}
	}
	return Pool{}, false
}

// ParsePool normalizes user input ("core", "liquid", "liquid-staked-bnb").
func ParsePool(input string) (PoolID, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "core", "core-pool":
		return PoolCore, true
	case "liquid", "liquid-staked", "liquid-staked-bnb", "lsbnb":
		return PoolLiquid, true
	default:
		return "", false
	}
}

// Markets returns a copy of the static market table for a pool.
func Markets(id PoolID) []Market {
	var src []Market
	switch id {
	case PoolCore:
		src = coreMarkets
	case PoolLiquid:
		src = liquidMarkets
	}
	out := make([]Market, 0, len(src))
	for _, m := range src {
		m.Aliases = append([]string(nil), m.Aliases...)
		out = append(out, m)
	}
	return out
}

// DefaultPool picks the pool an asset trades in when the caller does not say.
func DefaultPool(symbol string) PoolID {
	for _, m := range liquidMarkets {
		if m.Matches(symbol) {
			return PoolLiquid
		}
	}
	return PoolCore
}

// AssetSymbols lists every lendable symbol across pools, in table order.
func AssetSymbols() []string {
	out := make([]string, 0, len(coreMarkets)+len(liquidMarkets))
	for _, m := range coreMarkets {
		out = append(out, m.Symbol)
	}
	for _, m := range liquidMarkets {
		out = append(out, m.Symbol)
	}
	return out
}
