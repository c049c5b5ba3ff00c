package x402

import (
	"fmt"
	"strconv"
	"strings"
)

// Networks the mail service settles on.
const (
	NetworkBase        = "eip155:8453"
	NetworkBaseSepolia = "eip155:84532"
)

var v1NetworkAliases = map[string]string{
	"base":         NetworkBase,
	"base-sepolia": NetworkBaseSepolia,
}

// NormalizeNetwork maps v1 network names to their CAIP-2 identifiers.
func NormalizeNetwork(network string) string {
	if caip, ok := v1NetworkAliases[network]; ok {
		return caip
	}
	return network
}

// ChainID extracts the EVM chain id from a network identifier.
func ChainID(network string) (int64, error) {
	ref, ok := strings.CutPrefix(NormalizeNetwork(network), "eip155:")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not an EVM network", ErrUnsupportedNetwork, network)
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad chain id in %q", ErrUnsupportedNetwork, network)
	}

	return id, nil
}
