package email

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    config.MailConfig
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg config.MailConfig, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendDecision notifies the submitter that their claim was approved or rejected
func (s *Sender) SendDecision(ctx context.Context, claim *models.Claim) error {
	msg := decisionMessage(claim)

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{claim.Email}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	e.HTML = []byte(msg.HTML)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", claim.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", claim.Email, e.Subject)
	return nil
}

type message struct {
	Subject string
	Text    string
	HTML    string
}

func decisionMessage(claim *models.Claim) message {
	name := claim.Name
	if name == "" {
		name = "patient"
	}

	var outcome string
	switch claim.Status {
	case models.StatusApproved:
		approved := 0.0
		if claim.ApprovedAmount != nil {
			approved = *claim.ApprovedAmount
		}
		outcome = fmt.Sprintf("has been approved for %.2f of the %.2f requested.", approved, claim.ClaimAmount)
	case models.StatusRejected:
		outcome = "has been rejected."
	default:
		outcome = fmt.Sprintf("is now %s.", claim.Status)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Dear %s,\n\n", name)
	fmt.Fprintf(&text, "Your claim %s (%s) %s\n", claim.ID, claim.Description, outcome)
	if claim.InsurerComments != "" {
		fmt.Fprintf(&text, "\nInsurer comments: %s\n", claim.InsurerComments)
	}
	text.WriteString("\nBest regards,\nClaims Service")

	return message{
		Subject: fmt.Sprintf("Your claim has been %s", claim.Status),
		Text:    text.String(),
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(text.String()), "\n", "<br>") + "</p>",
	}
}
