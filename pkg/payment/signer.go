package payment

import (
	"errors"
	"net/url"

	"github.com/gymvietai/payment/pkg/crypto"
)

// ErrMissingSecret is returned when a signer is built without a hash secret.
var ErrMissingSecret = errors.New("payment: hash secret is required")

// Signer computes and checks the gateway's secure hash.
type Signer struct {
	secret string
}

// NewSigner creates a Signer for the pre-shared hash secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: secret}, nil
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical encoding of p.
func (s *Signer) Sign(p Params) string {
	return crypto.HMACSHA512Hex(s.secret, []byte(p.Encode()))
}

// Verify reports whether signature matches p.
func (s *Signer) Verify(p Params, signature string) bool {
	if signature == "" {
		return false
	}
	return crypto.EqualHex(s.Sign(p), signature)
}

// VerifyValues checks a raw callback: the signature is taken from the
// vnp_SecureHash field and the remaining fields are the signed set.
func (s *Signer) VerifyValues(values url.Values) bool {
	return s.Verify(FromValues(values), values.Get(FieldSecureHash))
}
