package payment

import (
	"fmt"
	"net/url"
	"strconv"
)

// ResponseCodeSuccess is the gateway's success sentinel in vnp_ResponseCode.
const ResponseCodeSuccess = "00"

// Callback is the interpreted content of a Return or IPN request.
type Callback struct {
	TxnRef        string
	Amount        int64 // unscaled
	ResponseCode  string
	TransactionNo string
	BankCode      string
	PayDate       string
	Params        Params
}

// Succeeded reports whether the gateway declared the payment successful.
func (c Callback) Succeeded() bool {
	return c.ResponseCode == ResponseCodeSuccess
}

// ParseCallback extracts the fields the order flow depends on. It does not
// check the signature.
func ParseCallback(values url.Values) (Callback, error) {
	p := FromValues(values)
	cb := Callback{
		TxnRef:        p.Get(FieldTxnRef),
		ResponseCode:  p.Get(FieldResponseCode),
		TransactionNo: p.Get(FieldTransactionNo),
		BankCode:      p.Get(FieldBankCode),
		PayDate:       p.Get(FieldPayDate),
		Params:        p,
	}
	if cb.TxnRef == "" {
		return cb, fmt.Errorf("payment: %s is required", FieldTxnRef)
	}
	raw := p.Get(FieldAmount)
	scaled, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || scaled < 0 {
		return cb, fmt.Errorf("payment: invalid %s %q", FieldAmount, raw)
	}
	if scaled%AmountScale != 0 {
		return cb, fmt.Errorf("payment: %s %q is not a whole amount", FieldAmount, raw)
	}
	cb.Amount = scaled / AmountScale
	return cb, nil
}
