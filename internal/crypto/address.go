package crypto

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// ValidateAddress checks that s is a 0x-prefixed 20-byte hex address. An
// all-lowercase or all-uppercase address is accepted as is; a mixed-case
// address must carry a correct EIP-55 checksum.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("crypto/address: %w: %v", domain.ErrInvalidAddress, errEmptyAddress)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return fmt.Errorf("crypto/address: %w: missing 0x prefix", domain.ErrInvalidAddress)
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("crypto/address: %w: %q is not a 20-byte hex address", domain.ErrInvalidAddress, s)
	}

	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if common.HexToAddress(s).Hex()[2:] != body {
		return fmt.Errorf("crypto/address: %w: bad checksum for %q", domain.ErrInvalidAddress, s)
	}
	return nil
}

// IsValidAddress is the boolean form of ValidateAddress.
func IsValidAddress(s string) bool {
	return ValidateAddress(s) == nil
}

// EqualAddresses compares two hex addresses case-insensitively.
func EqualAddresses(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AddressSet is an allowlist of addresses with case-insensitive membership.
type AddressSet struct {
	members map[common.Address]struct{}
}

// NewAddressSet builds an AddressSet, rejecting any malformed entry.
func NewAddressSet(addrs []string) (*AddressSet, error) {
	set := &AddressSet{members: make(map[common.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if err := ValidateAddress(a); err != nil {
			return nil, err
		}
		set.members[common.HexToAddress(a)] = struct{}{}
	}
	return set, nil
}

// Contains reports whether addr is in the set.
func (s *AddressSet) Contains(addr common.Address) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[addr]
	return ok
}

// Len returns the number of members.
func (s *AddressSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}
