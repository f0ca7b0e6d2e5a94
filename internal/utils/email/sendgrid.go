package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/models"
)

// SendGridSender delivers emails through the SendGrid API
type SendGridSender struct {
	from   string
	logger *logrus.Logger
	send   func(ctx context.Context, m *mail.SGMailV3) (int, string, error)
}

// NewSendGridSender creates a sender for the configured API key
func NewSendGridSender(cfg config.MailConfig, logger *logrus.Logger) *SendGridSender {
	client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	return &SendGridSender{
		from:   cfg.SenderEmail,
		logger: logger,
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

// SendDecision notifies the submitter that their claim was approved or rejected
func (s *SendGridSender) SendDecision(ctx context.Context, claim *models.Claim) error {
	msg := decisionMessage(claim)
	m := mail.NewSingleEmail(
		mail.NewEmail("Claims Service", s.from),
		msg.Subject,
		mail.NewEmail(claim.Name, claim.Email),
		msg.Text,
		msg.HTML,
	)

	status, body, err := s.send(ctx, m)
	if err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", claim.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("sendgrid rejected email with status %d: %s", status, body)
	}

	s.logger.Infof("Email sent to %s: %s", claim.Email, msg.Subject)
	return nil
}
