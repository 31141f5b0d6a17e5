package registry

import "strings"

// DefaultRPCURL is used whenever neither config nor --rpc-url names an endpoint.
const DefaultRPCURL = "https://bsc-dataseed.binance.org"

// ResolveRPCURL returns override when set, else the default endpoint.
func ResolveRPCURL(override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return DefaultRPCURL
}
