package domain

// Channel identifies which gateway callback delivered an outcome.
type Channel string

const (
	ChannelReturn Channel = "return"
	ChannelIPN    Channel = "ipn"
)

// ReturnStatus is the outcome shown to the user after the browser redirect.
type ReturnStatus string

const (
	ReturnSuccess ReturnStatus = "success"
	ReturnFailure ReturnStatus = "failure"
)

// ReturnResult is what the Return channel reports back to the browser.
type ReturnResult struct {
	Status  ReturnStatus `json:"status"`
	Message string       `json:"message"`
	OrderID string       `json:"orderId,omitempty"`
	Order   *Order       `json:"order,omitempty"`
}

// PaymentOutcome carries everything the best-effort fulfillment steps need
// once an order has left pending.
type PaymentOutcome struct {
	Order        *Order
	Plan         *Plan
	User         *User
	Channel      Channel
	ResponseCode string
}
