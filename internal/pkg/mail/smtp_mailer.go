package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/docquery/docquery/internal/pkg/env"
)

// SendMail sends a plain HTML email via SMTP. When SMTP_HOST is empty the
// mail is skipped silently so local setups work without a mail server.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		log.Printf("SMTP_HOST not set, skipping mail to %s", to)
		return nil
	}
	port := env.GetEnv("SMTP_PORT", "25")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = "no-reply@localhost"
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	}
	return err
}

// SendActivationEmail mails the account activation link to a new user.
func SendActivationEmail(to string, name string, token string) error {
	base := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000")
	link := fmt.Sprintf("%s/api/v1/auth/activate?token=%s", base, token)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>welcome to DocQuery. Confirm your email address by opening the link below:</p><p><a href=\"%s\">%s</a></p>",
		name, link, link,
	)
	return SendMail(to, "Confirm your DocQuery account", body)
}
