package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/models"
)

// DecisionSender delivers a decision notice for a claim
type DecisionSender interface {
	SendDecision(ctx context.Context, claim *models.Claim) error
}

// MailerQueue is the queue group shared by every decision mailer, so a
// decision is emailed once however many API processes run
const MailerQueue = "claims-mailer"

// DecisionMailer emails the submitter when a claim is approved or rejected
type DecisionMailer struct {
	bus    QueueBus
	sender DecisionSender
	log    *logrus.Logger
}

// NewDecisionMailer initializes a decision mailer
func NewDecisionMailer(bus QueueBus, sender DecisionSender, log *logrus.Logger) *DecisionMailer {
	return &DecisionMailer{bus: bus, sender: sender, log: log}
}

// Run consumes claim events until ctx is cancelled
func (m *DecisionMailer) Run(ctx context.Context) error {
	sub, err := m.bus.QueueSubscribe(ctx, TopicClaims, MailerQueue)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *DecisionMailer) handle(ctx context.Context, ev models.Event) {
	if ev.Type != models.EventClaimUpdated || ev.Claim == nil || !ev.Claim.Status.Terminal() {
		return
	}
	if ev.Claim.Email == "" {
		return
	}
	if err := m.sender.SendDecision(ctx, ev.Claim); err != nil {
		m.log.WithField("claim_id", ev.Claim.ID).Errorf("Failed to send decision email: %v", err)
	}
}
