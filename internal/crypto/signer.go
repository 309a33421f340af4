package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// Signer signs human-readable messages with a secp256k1 key using the
// EIP-191 personal-message scheme ("\x19Ethereum Signed Message:\n" + len).
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// NewSignerFromKey wraps an already-parsed private key.
func NewSignerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey exposes the key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// SignMessage signs message as a personal message and returns the 65-byte
// signature hex-encoded with a 0x prefix and v in {27,28}.
func (s *Signer) SignMessage(message string) (string, error) {
	return s.signDigest(accounts.TextHash([]byte(message)))
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets emit v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAddress returns the address whose key produced signatureHex over
// message, treating message as a personal message. Both v encodings
// ({0,1} and {27,28}) are accepted.
func RecoverAddress(message, signatureHex string) (common.Address, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(signatureHex), "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/recover: %w: not hex", domain.ErrInvalidSignature)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("crypto/recover: %w: expected %d bytes, got %d",
			domain.ErrInvalidSignature, ethcrypto.SignatureLength, len(sig))
	}

	switch sig[64] {
	case 0, 1:
	case 27, 28:
		sig[64] -= 27
	default:
		return common.Address{}, fmt.Errorf("crypto/recover: %w: bad recovery id %d", domain.ErrInvalidSignature, sig[64])
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/recover: %w: %v", domain.ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage reports whether signatureHex over message was produced by
// the key behind claimed. The comparison is case-insensitive.
func VerifyMessage(message, signatureHex, claimed string) (common.Address, error) {
	recovered, err := RecoverAddress(message, signatureHex)
	if err != nil {
		return common.Address{}, err
	}
	if !EqualAddresses(recovered.Hex(), claimed) {
		return recovered, domain.ErrSignatureMismatch
	}
	return recovered, nil
}

var errEmptyAddress = errors.New("empty address")
