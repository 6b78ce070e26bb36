package payment

import (
	"net/url"
	"sort"
	"strings"
)

// Gateway field names.
const (
	FieldVersion           = "vnp_Version"
	FieldCommand           = "vnp_Command"
	FieldTmnCode           = "vnp_TmnCode"
	FieldLocale            = "vnp_Locale"
	FieldCurrCode          = "vnp_CurrCode"
	FieldTxnRef            = "vnp_TxnRef"
	FieldOrderInfo         = "vnp_OrderInfo"
	FieldOrderType         = "vnp_OrderType"
	FieldAmount            = "vnp_Amount"
	FieldReturnURL         = "vnp_ReturnUrl"
	FieldIPAddr            = "vnp_IpAddr"
	FieldCreateDate        = "vnp_CreateDate"
	FieldResponseCode      = "vnp_ResponseCode"
	FieldTransactionNo     = "vnp_TransactionNo"
	FieldTransactionStatus = "vnp_TransactionStatus"
	FieldBankCode          = "vnp_BankCode"
	FieldBankTranNo        = "vnp_BankTranNo"
	FieldCardType          = "vnp_CardType"
	FieldPayDate           = "vnp_PayDate"
	FieldSecureHash        = "vnp_SecureHash"
	FieldSecureHashType    = "vnp_SecureHashType"
)

// Param is a single gateway field.
type Param struct {
	Key   string
	Value string
}

// Params is a canonically ordered, read-only set of gateway fields. The
// signature fields are never part of it, so the signing input can be derived
// from any Params value directly.
type Params struct {
	pairs []Param
}

// NewParams builds Params from a plain map.
func NewParams(fields map[string]string) Params {
	pairs := make([]Param, 0, len(fields))
	for k, v := range fields {
		if isSignatureField(k) {
			continue
		}
		pairs = append(pairs, Param{Key: k, Value: v})
	}
	return newSorted(pairs)
}

// FromValues builds Params from decoded query or form values. Only the first
// value of a repeated key is kept.
func FromValues(values url.Values) Params {
	pairs := make([]Param, 0, len(values))
	for k, vs := range values {
		if isSignatureField(k) || len(vs) == 0 {
			continue
		}
		pairs = append(pairs, Param{Key: k, Value: vs[0]})
	}
	return newSorted(pairs)
}

func newSorted(pairs []Param) Params {
	sort.Slice(pairs, func(i, j int) bool {
		return encodeComponent(pairs[i].Key) < encodeComponent(pairs[j].Key)
	})
	return Params{pairs: pairs}
}

// Get returns the value for key, or "" when absent.
func (p Params) Get(key string) string {
	for _, kv := range p.pairs {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Len returns the number of fields.
func (p Params) Len() int { return len(p.pairs) }

// Pairs returns a copy of the ordered fields.
func (p Params) Pairs() []Param {
	out := make([]Param, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// Map returns the fields as a map, suitable for persisting as a payload snapshot.
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.pairs))
	for _, kv := range p.pairs {
		out[kv.Key] = kv.Value
	}
	return out
}

// Encode renders the canonical "k=v&k=v" form. This byte sequence is both the
// signing input and the query string of the redirect URL.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encodeComponent(kv.Key))
		b.WriteByte('=')
		b.WriteString(encodeComponent(kv.Value))
	}
	return b.String()
}

func isSignatureField(key string) bool {
	return key == FieldSecureHash || key == FieldSecureHashType
}

// encodeComponent percent-encodes s the way the gateway's reference clients
// do: every byte outside A-Z a-z 0-9 and -_.!~*'() is escaped, and spaces
// become '+'.
func encodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case isUnreserved(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
