package utils

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"lexnexy/config"
	"lexnexy/models"
)

// Mailer delivers notification and invitation emails over SMTP. It is a
// best-effort sink: callers log failures and move on.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewMailer() *Mailer {
	return &Mailer{
		host:     config.AppConfig.SMTPHost,
		port:     config.AppConfig.SMTPPort,
		username: config.AppConfig.SMTPUsername,
		password: config.AppConfig.SMTPPassword,
		from:     config.AppConfig.FromEmail,
	}
}

// SendNotificationEmail sends the email rendering of a persisted
// notification to the recipient.
func (m *Mailer) SendNotificationEmail(user *models.User, notification *models.Notification) error {
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>%s</h2>
			<p>%s</p>
			<p><a href="%s%s">View in Lexnexy</a></p>
		</body>
		</html>
	`, notification.Title, notification.Message, config.AppConfig.AppURL, notification.ActionURL)

	return m.send(user.Email, notification.Title, body)
}

// SendInvitationEmail sends the join link for a pending firm membership.
func (m *Mailer) SendInvitationEmail(email, firmName, token string) error {
	inviteLink := fmt.Sprintf("%s/invitations/%s", config.AppConfig.AppURL, token)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>You've been invited to join %s</h2>
			<p>Click the link below to accept the invitation:</p>
			<p><a href="%s">%s</a></p>
			<p>If you don't have an account yet, you'll be asked to create one.</p>
		</body>
		</html>
	`, firmName, inviteLink, inviteLink)

	return m.send(email, fmt.Sprintf("Invitation to join %s", firmName), body)
}

func (m *Mailer) send(to, subject, body string) error {
	if m.host == "" {
		return fmt.Errorf("SMTP is not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
