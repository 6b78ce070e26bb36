package payment

// IPN response codes. The gateway matches on these exactly.
const (
	RspConfirmed        = "00"
	RspOrderNotFound    = "01"
	RspInvalidAmount    = "04"
	RspInvalidSignature = "97"
	RspUnknownError     = "99"
)

var rspMessages = map[string]string{
	RspConfirmed:        "Confirm Success",
	RspOrderNotFound:    "Order not found",
	RspInvalidAmount:    "Invalid amount",
	RspInvalidSignature: "Invalid signature",
	RspUnknownError:     "Unknown error",
}

// IPNResponse is the body returned to the gateway's notification call.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// NewIPNResponse returns the canonical response for code.
func NewIPNResponse(code string) IPNResponse {
	msg, ok := rspMessages[code]
	if !ok {
		code, msg = RspUnknownError, rspMessages[RspUnknownError]
	}
	return IPNResponse{RspCode: code, Message: msg}
}
