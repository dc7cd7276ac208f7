package chain

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	prefixMainnet = "nexa"
	prefixTestnet = "nexatest"
)

func networkForPrefix(prefix string) string {
	switch prefix {
	case prefixMainnet:
		return NetworkMainnet
	case prefixTestnet:
		return NetworkTestnet
	}
	return ""
}

// ValidateAddress checks bech32 well-formedness and that the address prefix
// belongs to the expected network.
func ValidateAddress(address, network string) ValidationResult {
	address = strings.TrimSpace(address)
	if address == "" {
		return ValidationResult{Err: "address is empty"}
	}

	prefix, _, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return ValidationResult{Err: "malformed address: " + err.Error()}
	}

	addrNetwork := networkForPrefix(prefix)
	if addrNetwork == "" {
		return ValidationResult{Err: "unknown address prefix " + prefix}
	}
	if addrNetwork != network {
		return ValidationResult{
			Network: addrNetwork,
			Err:     "address belongs to " + addrNetwork + ", expected " + network,
		}
	}
	return ValidationResult{Valid: true, Network: addrNetwork}
}
