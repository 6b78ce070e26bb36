package notify

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func testMailer(capture *capturedMail, err error) *SMTPMailer {
	m := NewSMTPMailer(MailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		User:     "billing@example.com",
		Pass:     "app-password",
		FromName: "GymVietAI",
	})
	m.send = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		*capture = capturedMail{addr: addr, from: from, to: to, msg: string(msg)}
		return err
	}
	return m
}

func TestFormatVND(t *testing.T) {
	cases := map[int64]string{
		0:         "0 VNĐ",
		999:       "999 VNĐ",
		1000:      "1.000 VNĐ",
		500000:    "500.000 VNĐ",
		1200000:   "1.200.000 VNĐ",
		100000000: "100.000.000 VNĐ",
		-25000:    "-25.000 VNĐ",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatVND(in))
	}
}

func TestSMTPMailer_SendSuccess(t *testing.T) {
	var got capturedMail
	m := testMailer(&got, nil)

	err := m.SendSuccess(context.Background(), "a@example.com", PaymentMail{OrderID: "ORDER_1", PlanName: "VIP", Amount: 1200000})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "billing@example.com", got.from)
	assert.Equal(t, []string{"a@example.com"}, got.to)
	assert.Contains(t, got.msg, "To: a@example.com\r\n")
	assert.Contains(t, got.msg, "<billing@example.com>")
	assert.Contains(t, got.msg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, got.msg, "ORDER_1")
	assert.Contains(t, got.msg, "1.200.000 VNĐ")
}

func TestSMTPMailer_SendFailureEscapesContent(t *testing.T) {
	var got capturedMail
	m := testMailer(&got, nil)

	err := m.SendFailure(context.Background(), "a@example.com", PaymentMail{
		OrderID:  "ORDER_1",
		PlanName: "<script>",
		Amount:   500000,
		Reason:   FailureReason("24"),
	})
	require.NoError(t, err)
	assert.Contains(t, got.msg, "&lt;script&gt;")
	assert.Contains(t, got.msg, "24 - Khách hàng hủy giao dịch")
}

func TestSMTPMailer_Errors(t *testing.T) {
	var got capturedMail
	m := testMailer(&got, errors.New("535 auth failed"))

	assert.Error(t, m.SendSuccess(context.Background(), "", PaymentMail{}))

	err := m.SendSuccess(context.Background(), "a@example.com", PaymentMail{OrderID: "ORDER_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendSuccess(ctx, "a@example.com", PaymentMail{}), context.Canceled)
}

// silentSMTPServer accepts connections and never sends a greeting.
func silentSMTPServer(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().(*net.TCPAddr)
}

func TestSMTPMailer_HungServerHonoursContext(t *testing.T) {
	addr := silentSMTPServer(t)
	m := NewSMTPMailer(MailConfig{
		Host: addr.IP.String(),
		Port: addr.Port,
		User: "billing@example.com",
		Pass: "app-password",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := m.SendSuccess(ctx, "a@example.com", PaymentMail{OrderID: "ORDER_1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start = time.Now()
	err = m.SendFailure(ctx, "a@example.com", PaymentMail{OrderID: "ORDER_1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", FailureReason(""))
	assert.Equal(t, "51 - Tài khoản của quý khách không đủ số dư để thực hiện giao dịch", FailureReason("51"))
	assert.Equal(t, "42 - Lỗi không xác định", FailureReason("42"))
}
