package mailer

import (
	"bytes"
	"embed"
	"github.com/go-mail/mail/v2"
	"html/template"
	"time"
)

// templateFS holds the email templates. Each template file defines three named
// templates: "subject", "plainBody" and "htmlBody".
//
//go:embed "templates"
var templateFS embed.FS

// Mailer sends templated emails through an SMTP server.
type Mailer struct {
	dialer *mail.Dialer
	sender string // "Name <address>" used as the From header.
}

// New returns a Mailer for the given SMTP server; dialing times out after 5 seconds.
func New(host string, port int, username, password, sender string) Mailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return Mailer{
		dialer: dialer,
		sender: sender,
	}
}

// Render executes the three parts of templateFile with data.
func Render(templateFile string, data any) (subject, plainBody, htmlBody string, err error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	parts := make([]string, 0, 3)
	for _, name := range []string{"subject", "plainBody", "htmlBody"} {
		buf := new(bytes.Buffer)
		if err := tmpl.ExecuteTemplate(buf, name, data); err != nil {
			return "", "", "", err
		}
		parts = append(parts, buf.String())
	}

	return parts[0], parts[1], parts[2], nil
}

// Send renders templateFile with data and delivers it to recipient. The plain-text body
// must be set before the HTML alternative.
func (m Mailer) Send(recipient, templateFile string, data any) error {
	subject, plainBody, htmlBody, err := Render(templateFile, data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	msg.AddAlternative("text/html", htmlBody)

	return m.dialer.DialAndSend(msg)
}
