package mailer

import (
	"bytes"
	"embed"
	"fmt"
	ht "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

type Mailer interface {
	Send(recipient, templateFile string, data any) error
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": func(t time.Time) string { return t.Format("Mon, Jan 2 2006 15:04 MST") },
}

type SMTPMailer struct {
	dialer  *mail.Dialer
	sender  string
	retries int
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer:  dialer,
		sender:  sender,
		retries: 3,
	}
}

// Render executes the subject, plainBody and htmlBody blocks of a template.
func Render(templateFile string, data any) (subject, plainBody, htmlBody string, err error) {
	tmpl, err := template.New("email").Funcs(funcs).ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	var buf bytes.Buffer

	if err = tmpl.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", "", err
	}
	subject = buf.String()

	buf.Reset()
	if err = tmpl.ExecuteTemplate(&buf, "plainBody", data); err != nil {
		return "", "", "", err
	}
	plainBody = buf.String()

	htmlTmpl, err := ht.New("email").Funcs(ht.FuncMap(funcs)).ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	buf.Reset()
	if err = htmlTmpl.ExecuteTemplate(&buf, "htmlBody", data); err != nil {
		return "", "", "", err
	}
	htmlBody = buf.String()

	return subject, plainBody, htmlBody, nil
}

func (m *SMTPMailer) Send(recipient, templateFile string, data any) error {
	subject, plainBody, htmlBody, err := Render(templateFile, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", templateFile, err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	msg.AddAlternative("text/html", htmlBody)

	for i := 1; i <= m.retries; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		if i < m.retries {
			time.Sleep(500 * time.Millisecond)
		}
	}

	return fmt.Errorf("send %s to %s: %w", templateFile, recipient, err)
}
