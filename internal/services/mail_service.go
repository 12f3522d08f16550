package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/sirupsen/logrus"
)

type IMailService interface {
	SendMailToNotifyUser(to, subject, body, ctaText, ctaURL string) error
	SendExpiryReminder(to string, m ReminderMail) error
}

// ReminderMail is what a near expiry reminder needs to say.
type ReminderMail struct {
	Kind          string
	Plan          string
	EndDate       string
	DaysRemaining int
	Balance       int64
	ManageURL     string
}

// SMTPConfig holds SMTP + branding config.
type SMTPConfig struct {
	Host       string
	Port       int  // 587 for STARTTLS, 465 for SMTPS
	Username   string
	Password   string
	From       string
	FromName   string
	UseSSL     bool // implicit TLS
	RequireTLS bool // fail if STARTTLS is not offered

	AppName    string
	AppBaseURL string
}

type smtpMailService struct {
	cfg     SMTPConfig
	htmlTpl *template.Template
	textTpl *texttemplate.Template
	now     func() time.Time
}

func NewSMTPMailService(cfg SMTPConfig) (IMailService, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	htmlTpl, err := template.New("html").Parse(baseHTMLTemplate)
	if err != nil {
		return nil, err
	}
	textTpl, err := texttemplate.New("text").Parse(plainTextTemplate)
	if err != nil {
		return nil, err
	}
	return &smtpMailService{cfg: cfg, htmlTpl: htmlTpl, textTpl: textTpl, now: time.Now}, nil
}

func (s *smtpMailService) SendMailToNotifyUser(to, subject, body, ctaText, ctaURL string) error {
	html, text, err := s.renderEmail(EmailData{
		Title:     subject,
		Intro:     body,
		ButtonURL: ctaURL,
		ButtonTxt: ctaText,
		AppName:   s.cfg.AppName,
		Year:      s.now().Year(),
	})
	if err != nil {
		return err
	}
	msg := buildMessage(s.formatFromHeader(), to, subject, html, text, s.now())
	return s.send(to, msg)
}

func (s *smtpMailService) SendExpiryReminder(to string, m ReminderMail) error {
	subject, body := reminderText(m)
	url := m.ManageURL
	if url == "" {
		url = strings.TrimRight(s.cfg.AppBaseURL, "/") + "/billing"
	}
	return s.SendMailToNotifyUser(to, subject, body, "Manage subscription", url)
}

func reminderText(m ReminderMail) (subject, body string) {
	days := "1 day"
	if m.DaysRemaining != 1 {
		days = fmt.Sprintf("%d days", m.DaysRemaining)
	}
	subject = fmt.Sprintf("Your %s subscription ends in %s", m.Plan, days)
	body = fmt.Sprintf("The %s %s subscription ends on %s.", m.Plan, m.Kind, m.EndDate)
	if m.Balance > 0 {
		body += fmt.Sprintf(" An outstanding balance of %d is still due.", m.Balance)
	}
	body += " Renew before then to keep access to your plan's features."
	return subject, body
}

// ------------------- Rendering -------------------

type EmailData struct {
	Title     string
	Intro     string
	ButtonURL string
	ButtonTxt string
	AppName   string
	Year      int
}

const baseHTMLTemplate = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f4f6f8; color: #1f2933; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .container { max-width: 560px; margin: 32px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e4e7eb; }
    .header { padding: 24px 28px; border-bottom: 1px solid #e4e7eb; font-weight: 700; color: #7b3fa0; letter-spacing: 0.4px; }
    .hero { padding: 28px; }
    h1 { margin: 0 0 14px; font-size: 22px; }
    p { margin: 0 0 18px; line-height: 1.6; color: #3e4c59; }
    .btn { display: inline-block; padding: 12px 24px; background: #7b3fa0; color: #ffffff !important; text-decoration: none; border-radius: 8px; font-weight: 600; }
    .muted { color: #7b8794; font-size: 12px; word-break: break-all; }
    .footer { padding: 18px 28px; color: #9aa5b1; font-size: 12px; text-align: center; border-top: 1px solid #e4e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">{{.AppName}}</div>
    <div class="hero">
      <h1>{{.Title}}</h1>
      <p>{{.Intro}}</p>
      {{if .ButtonURL}}
        <p><a class="btn" href="{{.ButtonURL}}">{{.ButtonTxt}}</a></p>
        <p class="muted">If the button doesn't work, open {{.ButtonURL}}</p>
      {{end}}
    </div>
    <div class="footer">© {{.Year}} {{.AppName}}</div>
  </div>
</body>
</html>`

const plainTextTemplate = `{{.Title}}

{{.Intro}}
{{if .ButtonURL}}
{{.ButtonTxt}}: {{.ButtonURL}}
{{end}}
{{.AppName}} (c) {{.Year}}
`

func (s *smtpMailService) renderEmail(data EmailData) (html string, text string, err error) {
	var hb, tb bytes.Buffer
	if err = s.htmlTpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err = s.textTpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

// buildMessage assembles a multipart/alternative message with quoted
// printable bodies.
func buildMessage(from, to, subject, htmlBody, textBody string, date time.Time) []byte {
	boundary := fmt.Sprintf("alt_%d", date.UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = fmt.Fprintf(&msg, format, a...) }

	write("From: %s\r\n", from)
	write("To: %s\r\n", to)
	write("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	write("Date: %s\r\n", date.Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", textBody},
		{"text/html", htmlBody},
	} {
		write("--%s\r\n", boundary)
		write("Content-Type: %s; charset=UTF-8\r\n", part.contentType)
		write("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		qp := quotedprintable.NewWriter(&msg)
		_, _ = qp.Write([]byte(part.body))
		_ = qp.Close()
		write("\r\n")
	}
	write("--%s--\r\n", boundary)
	return msg.Bytes()
}

// ------------------- SMTP Send -------------------

func (s *smtpMailService) send(to string, msg []byte) error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if s.cfg.Username != "" {
		if err = c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err = c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *smtpMailService) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	if s.cfg.UseSSL {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, s.cfg.Host)
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err = c.StartTLS(tlsCfg); err != nil {
			c.Close()
			return nil, err
		}
	} else if s.cfg.RequireTLS {
		c.Close()
		return nil, fmt.Errorf("server does not support STARTTLS and RequireTLS=true")
	}
	return c, nil
}

func (s *smtpMailService) formatFromHeader() string {
	name := strings.TrimSpace(s.cfg.FromName)
	if name == "" {
		return s.cfg.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), s.cfg.From)
}

// logMailService stands in when SMTP is not configured.
type logMailService struct {
	log *logrus.Logger
}

func NewLogMailService(log *logrus.Logger) IMailService {
	return &logMailService{log: log}
}

func (l *logMailService) SendMailToNotifyUser(to, subject, body, ctaText, ctaURL string) error {
	l.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mail not sent, smtp disabled")
	return nil
}

func (l *logMailService) SendExpiryReminder(to string, m ReminderMail) error {
	subject, _ := reminderText(m)
	return l.SendMailToNotifyUser(to, subject, "", "", "")
}
