package registry

import "strings"

// YieldPool maps a user-facing pool key to its DefiLlama yields id.
type YieldPool struct {
	Key      string
	PoolID   string
	Protocol string
	Type     string
}

var yieldPools = []YieldPool{
	{Key: "slisBNB", PoolID: "50bb5f69-85ea-4f70-81da-3661a1633fc4", Protocol: "Lista DAO", Type: "Liquid Staking"},
	{Key: "ETH", PoolID: "de8928ad-d03a-423d-92d7-3c4648e3ffd2", Protocol: "Venus", Type: "Lending"},
	{Key: "DAI", PoolID: "406b11b4-c4f9-4253-bfd3-388c208a4ecd", Protocol: "Venus", Type: "Lending"},
	{Key: "lisUSD", PoolID: "9f44dab4-eaba-4f79-b86d-648e010edf0c", Protocol: "Venus", Type: "Lending"},
	{Key: "USDT", PoolID: "9f3a6015-5045-4471-ba65-ad3dc7c38269", Protocol: "Venus", Type: "Lending"},
	{Key: "USDC", PoolID: "89eba1e5-1b1b-47b6-958b-38138a04c244", Protocol: "Venus", Type: "Lending"},
	{Key: "USD1", PoolID: "406b11b4-c4f9-4253-bfd3-388c208a4ecd", Protocol: "Venus", Type: "Lending"},
	{Key: "WBNB", PoolID: "747b58ab-aefd-42e1-a312-01ad5a0ab7f5", Protocol: "Venus", Type: "Lending"},
	{Key: "SolvBTC", PoolID: "870e5485-c1f2-4a14-b014-286d0a833bf6", Protocol: "Venus", Type: "Lending"},
}

func YieldPools() []YieldPool {
	return append([]YieldPool(nil), yieldPools...)
}

func LookupYieldPool(key string) (YieldPool, bool) {
	for _, p := range yieldPools {
		if strings.EqualFold(p.Key, strings.TrimSpace(key)) {
			return p, true
		}
	}
	return YieldPool{}, false
}

func YieldPoolKeys() []string {
	out := make([]string, 0, len(yieldPools))
	for _, p := range yieldPools {
		out = append(out, p.Key)
	}
	return out
}
