package crypto

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"checksummed", testAddress, true},
		{"lowercase", strings.ToLower(testAddress), true},
		{"uppercase body", "0x" + strings.ToUpper(testAddress[2:]), true},
		{"bad checksum", "0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"short", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb9226", false},
		{"no prefix", testAddress[2:], false},
		{"non hex", "0xg39fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"empty", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAddress(tc.in)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidAddress)
			assert.False(t, IsValidAddress(tc.in))
		})
	}
}

func TestEqualAddresses(t *testing.T) {
	assert.True(t, EqualAddresses(testAddress, strings.ToLower(testAddress)))
	assert.False(t, EqualAddresses(testAddress, "0x0000000000000000000000000000000000000001"))
}

func TestAddressSet(t *testing.T) {
	set, err := NewAddressSet([]string{strings.ToLower(testAddress), " 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 "})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(common.HexToAddress(testAddress)))
	assert.False(t, set.Contains(common.HexToAddress("0x0000000000000000000000000000000000000001")))

	_, err = NewAddressSet([]string{"0xnope"})
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	var empty *AddressSet
	assert.False(t, empty.Contains(common.HexToAddress(testAddress)))
}
