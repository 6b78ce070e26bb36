package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// HMACSHA512Hex returns the lowercase hex HMAC-SHA512 of data keyed with secret.
func HMACSHA512Hex(secret string, data []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualHex compares two hex digests in constant time. Case is ignored because
// some gateways emit uppercase digests.
func EqualHex(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}
