package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Fixed protocol values.
const (
	Version       = "2.1.0"
	CommandPay    = "pay"
	LocaleVN      = "vn"
	CurrencyVND   = "VND"
	OrderTypeMisc = "other"

	// AmountScale is the factor the gateway applies to amounts on the wire.
	AmountScale = 100

	createDateLayout = "20060102150405"
)

// vietnamTZ is the gateway's clock (Asia/Ho_Chi_Minh, no DST).
var vietnamTZ = time.FixedZone("ICT", 7*60*60)

// Config identifies the merchant at the gateway.
type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// Validate reports the first missing identity value.
func (c Config) Validate() error {
	switch {
	case c.TmnCode == "":
		return errors.New("payment: merchant code is required")
	case c.HashSecret == "":
		return ErrMissingSecret
	case c.PayURL == "":
		return errors.New("payment: gateway URL is required")
	case c.ReturnURL == "":
		return errors.New("payment: return URL is required")
	}
	return nil
}

// Request describes one payment attempt for an order.
type Request struct {
	OrderID   string
	Amount    int64 // in VND, unscaled
	OrderInfo string
	ClientIP  string
}

// Gateway builds signed redirect URLs and verifies callbacks.
type Gateway struct {
	cfg    Config
	signer *Signer
	now    func() time.Time
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithClock overrides the clock used for vnp_CreateDate.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway validates cfg and returns a ready Gateway.
func NewGateway(cfg Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.PayURL); err != nil {
		return nil, fmt.Errorf("payment: invalid gateway URL: %w", err)
	}
	signer, err := NewSigner(cfg.HashSecret)
	if err != nil {
		return nil, err
	}
	g := &Gateway{cfg: cfg, signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Signer exposes the gateway's signer.
func (g *Gateway) Signer() *Signer { return g.signer }

// PaymentURL returns the fully qualified, signed redirect URL for req.
func (g *Gateway) PaymentURL(req Request) (string, error) {
	if req.OrderID == "" {
		return "", errors.New("payment: order id is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("payment: amount must be positive, got %d", req.Amount)
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := NewParams(map[string]string{
		FieldVersion:    Version,
		FieldCommand:    CommandPay,
		FieldTmnCode:    g.cfg.TmnCode,
		FieldLocale:     LocaleVN,
		FieldCurrCode:   CurrencyVND,
		FieldTxnRef:     req.OrderID,
		FieldOrderInfo:  req.OrderInfo,
		FieldOrderType:  OrderTypeMisc,
		FieldAmount:     strconv.FormatInt(req.Amount*AmountScale, 10),
		FieldReturnURL:  g.cfg.ReturnURL,
		FieldIPAddr:     ip,
		FieldCreateDate: g.now().In(vietnamTZ).Format(createDateLayout),
	})

	query := params.Encode()
	return g.cfg.PayURL + "?" + query + "&" + FieldSecureHash + "=" + g.signer.Sign(params), nil
}
