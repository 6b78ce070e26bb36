package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// PaymentMail is the content of a payment notification email.
type PaymentMail struct {
	OrderID  string
	PlanName string
	Amount   int64
	Reason   string
}

// MailConfig holds the SMTP server settings.
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	FromName string
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// defaultMailTimeout bounds a send whose context carries no deadline.
const defaultMailTimeout = 30 * time.Second

// SMTPMailer sends payment notification emails.
type SMTPMailer struct {
	cfg  MailConfig
	send sendFunc
}

// NewSMTPMailer creates a mailer that authenticates with PLAIN auth.
func NewSMTPMailer(cfg MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: sendMail}
}

// sendMail is smtp.SendMail bound to ctx: the connection deadline follows
// the context deadline and cancelling ctx aborts any blocked read or write.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultMailTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

var (
	successTmpl = template.Must(template.New("success").Funcs(mailFuncs).Parse(`<h2>Cảm ơn bạn đã thanh toán!</h2>
<p>Đơn hàng của bạn đã được xử lý thành công:</p>
<ul>
	<li>Mã đơn hàng: {{or .OrderID "N/A"}}</li>
	<li>Gói dịch vụ: {{or .PlanName "N/A"}}</li>
	<li>Số tiền: {{vnd .Amount}}</li>
</ul>
<p>Bạn có thể bắt đầu sử dụng dịch vụ ngay bây giờ.</p>
<p>Nếu có bất kỳ thắc mắc nào, vui lòng liên hệ với chúng tôi.</p>
`))

	failureTmpl = template.Must(template.New("failure").Funcs(mailFuncs).Parse(`<h2>Thông báo thanh toán thất bại</h2>
<p>Đơn hàng của bạn không thể hoàn tất:</p>
<ul>
	<li>Mã đơn hàng: {{or .OrderID "N/A"}}</li>
	<li>Gói dịch vụ: {{or .PlanName "N/A"}}</li>
	<li>Số tiền: {{vnd .Amount}}</li>
	<li>Lý do: {{or .Reason "Không xác định"}}</li>
</ul>
<p>Vui lòng thử lại hoặc liên hệ với chúng tôi nếu cần hỗ trợ.</p>
`))

	mailFuncs = template.FuncMap{"vnd": FormatVND}
)

// SendSuccess sends the payment confirmation email.
func (m *SMTPMailer) SendSuccess(ctx context.Context, to string, mail PaymentMail) error {
	return m.deliver(ctx, to, "Thanh toán thành công", successTmpl, mail)
}

// SendFailure sends the payment failure email.
func (m *SMTPMailer) SendFailure(ctx context.Context, to string, mail PaymentMail) error {
	return m.deliver(ctx, to, "Thanh toán thất bại", failureTmpl, mail)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject string, tmpl *template.Template, mail PaymentMail) error {
	if to == "" {
		return fmt.Errorf("no recipient address")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, mail); err != nil {
		return fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}

	from := mime.QEncoding.Encode("utf-8", m.cfg.FromName) + " <" + m.cfg.User + ">"
	msg := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body.String(),
	)

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	if err := m.send(ctx, addr, auth, m.cfg.User, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// FormatVND renders an amount with dot thousands separators, as vi-VN does.
func FormatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + b.String() + " VNĐ"
}

var failureReasons = map[string]string{
	"24": "Khách hàng hủy giao dịch",
	"09": "Thẻ/Tài khoản của khách hàng chưa đăng ký dịch vụ InternetBanking tại ngân hàng",
	"10": "Khách hàng xác thực thông tin thẻ/tài khoản không đúng quá 3 lần",
	"11": "Đã hết hạn chờ thanh toán",
	"12": "Thẻ/Tài khoản của khách hàng bị khóa",
	"13": "Quý khách nhập sai mật khẩu xác thực giao dịch (OTP)",
	"51": "Tài khoản của quý khách không đủ số dư để thực hiện giao dịch",
	"65": "Tài khoản của Quý khách đã vượt quá hạn mức giao dịch trong ngày",
	"75": "Ngân hàng thanh toán đang bảo trì",
	"79": "KH nhập sai mật khẩu thanh toán quá số lần quy định",
	"99": "Các lỗi khác",
}

// FailureReason describes a gateway response code for the failure email.
func FailureReason(code string) string {
	if code == "" {
		return ""
	}
	if r, ok := failureReasons[code]; ok {
		return code + " - " + r
	}
	return code + " - Lỗi không xác định"
}
