package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const quoteTagLen = 16

// QuoteSigner issues quote ids that carry an HMAC tag, so the confirm
// endpoint can reject forged ids without a store lookup.
//
// Format: <uuid>.<base64url(hmac-sha256(secret, uuid)[:16])>
type QuoteSigner struct {
	secret []byte
}

// NewQuoteSigner returns a QuoteSigner keyed by secret.
func NewQuoteSigner(secret string) (*QuoteSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("crypto/quote: secret must be at least 16 bytes")
	}
	return &QuoteSigner{secret: []byte(secret)}, nil
}

// NewQuoteID returns a fresh tagged quote id.
func (q *QuoteSigner) NewQuoteID() string {
	id := uuid.NewString()
	return id + "." + q.tag(id)
}

// Verify reports whether quoteID was issued with this signer's secret.
func (q *QuoteSigner) Verify(quoteID string) bool {
	id, tag, ok := strings.Cut(quoteID, ".")
	if !ok || id == "" || tag == "" {
		return false
	}
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	return hmac.Equal([]byte(tag), []byte(q.tag(id)))
}

func (q *QuoteSigner) tag(id string) string {
	mac := hmac.New(sha256.New, q.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:quoteTagLen])
}
