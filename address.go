package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// validateWalletAddress performs local validation of a LightChain wallet
// address: expected prefix, expected length, and a well-formed base58 body.
// CryptoNote addresses carry their network prefix inside the base58
// payload, so decoding the full string is sufficient to reject malformed
// input; full checksum verification is left to the wallet backend that
// executes payouts.
func validateWalletAddress(addr, prefix string, length int) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("empty address")
	}
	if prefix != "" && !strings.HasPrefix(addr, prefix) {
		return fmt.Errorf("address must start with %q", prefix)
	}
	if length > 0 && len(addr) != length {
		return fmt.Errorf("address must be %d characters, got %d", length, len(addr))
	}
	if decoded := base58.Decode(addr); len(decoded) == 0 {
		return errors.New("address is not valid base58")
	}
	return nil
}
